// Package query evaluates expressions over a merged overlay view.
//
// The expr engine (github.com/expr-lang/expr) is the default. cel-go is
// always available. goja is compiled in with the js_eval build tag:
//
//	go build -tags js_eval ./...
package query
