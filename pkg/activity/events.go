package activity

import (
	"fmt"
	"strings"
	"time"
)

// GroupEventInput describes an authored group.
type GroupEventInput struct {
	ActorID    string
	Plugin     string
	Group      string
	Path       string
	Fields     []string
	Prefixes   []string
	OccurredAt time.Time
}

// BuildGroupDefinedEvent describes a group created by the authoring API.
func BuildGroupDefinedEvent(input GroupEventInput) Event {
	return buildGroupEvent(VerbGroupDefined, input)
}

// BuildGroupUpdatedEvent describes an existing group changed by the authoring
// API.
func BuildGroupUpdatedEvent(input GroupEventInput) Event {
	return buildGroupEvent(VerbGroupUpdated, input)
}

func buildGroupEvent(verb string, input GroupEventInput) Event {
	metadata := map[string]any{
		"plugin": input.Plugin,
		"group":  input.Group,
	}
	if input.Path != "" {
		metadata["path"] = input.Path
	}
	if len(input.Fields) > 0 {
		metadata["fields"] = append([]string(nil), input.Fields...)
	}
	if len(input.Prefixes) > 0 {
		metadata["prefixes"] = append([]string(nil), input.Prefixes...)
	}
	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: ObjectGroup,
		ObjectID:   GroupObjectID(input.Plugin, input.Group),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// GroupObjectID is the object id used for group events.
func GroupObjectID(plugin, group string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSpace(plugin), strings.TrimSpace(group))
}

// SaveEventInput describes a user overrides write.
type SaveEventInput struct {
	ActorID    string
	Path       string
	ETag       string
	EditNonce  string
	Plugins    int
	Empty      bool
	OccurredAt time.Time
}

// BuildOverridesSavedEvent describes a user document written by the loader.
func BuildOverridesSavedEvent(input SaveEventInput) Event {
	metadata := map[string]any{
		"plugins": input.Plugins,
		"empty":   input.Empty,
	}
	if input.ETag != "" {
		metadata["etag"] = input.ETag
	}
	if input.EditNonce != "" {
		metadata["edit_nonce"] = input.EditNonce
	}
	return Event{
		Verb:       VerbOverridesSaved,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: ObjectOverrides,
		ObjectID:   objectIDOr(input.Path, ObjectOverrides),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// ReloadEventInput describes a reload attempt.
type ReloadEventInput struct {
	ShippedPath string
	UserPath    string
	Signature   string
	Plugins     int
	Err         error
	OccurredAt  time.Time
}

// BuildReloadedEvent describes a successful reload.
func BuildReloadedEvent(input ReloadEventInput) Event {
	return buildReloadEvent(VerbConfigReloaded, input)
}

// BuildStaleEvent describes a failed reload that left the last good view in
// place.
func BuildStaleEvent(input ReloadEventInput) Event {
	return buildReloadEvent(VerbConfigStale, input)
}

func buildReloadEvent(verb string, input ReloadEventInput) Event {
	metadata := map[string]any{
		"shipped_path": input.ShippedPath,
		"user_path":    input.UserPath,
		"signature":    input.Signature,
		"plugins":      input.Plugins,
	}
	if input.Err != nil {
		metadata["error"] = input.Err.Error()
	}
	return Event{
		Verb:       verb,
		ObjectType: ObjectConfig,
		ObjectID:   objectIDOr(input.UserPath, objectIDOr(input.ShippedPath, ObjectConfig)),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func objectIDOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
