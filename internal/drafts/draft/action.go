package draft

// Action is one discrete event applied to a draft. The set is closed: only the
// types in this file implement it.
type Action interface {
	actionName() string
}

type InitFromInputs struct {
	Inputs map[string]any
}

type GenerateRequest struct {
	ClearBaseline bool
}

// GenerateSuccess carries the sequence number returned when the request was
// dispatched. Completions for any other sequence are discarded as stale.
type GenerateSuccess struct {
	Seq           uint64
	Baseline      Content
	PreserveEdits bool
}

type GenerateError struct {
	Seq     uint64
	Message string
}

type ApplyEdit struct {
	Field string
	Value any
}

// ApplyEdits applies every edit in one transition, or none of them: a missing
// baseline or an empty field key rejects the whole batch.
type ApplyEdits struct {
	Edits []ApplyEdit
}

type ResetField struct {
	Field string
}

type ResetAllEdits struct{}

type Undo struct{}

type ResetDraft struct {
	Inputs map[string]any
}

func (InitFromInputs) actionName() string  { return "init_from_inputs" }
func (GenerateRequest) actionName() string { return "generate_request" }
func (GenerateSuccess) actionName() string { return "generate_success" }
func (GenerateError) actionName() string   { return "generate_error" }
func (ApplyEdit) actionName() string       { return "apply_edit" }
func (ApplyEdits) actionName() string      { return "apply_edits" }
func (ResetField) actionName() string      { return "reset_field" }
func (ResetAllEdits) actionName() string   { return "reset_all_edits" }
func (Undo) actionName() string            { return "undo" }
func (ResetDraft) actionName() string      { return "reset_draft" }

// ActionName exposes the stable name of an action for logs and traces.
func ActionName(a Action) string {
	if a == nil {
		return ""
	}
	return a.actionName()
}
