package services

import (
	"errors"
	"net/http"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/platform/apierr"
)

// ErrInvalidRequest marks input that failed validation before reaching a
// draft.
var ErrInvalidRequest = errors.New("invalid request")

type errMapping struct {
	target error
	status int
	code   string
}

var errMappings = []errMapping{
	{ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{ErrDraftNotFound, http.StatusNotFound, "draft_not_found"},
	{ErrDraftExists, http.StatusConflict, "draft_exists"},

	{draft.ErrInvalidField, http.StatusBadRequest, "invalid_field"},
	{draft.ErrNoBaseline, http.StatusUnprocessableEntity, "no_baseline"},
	{draft.ErrGenerationInFlight, http.StatusConflict, "generation_in_flight"},
	{draft.ErrNothingToUndo, http.StatusConflict, "nothing_to_undo"},

	{snapshot.ErrSnapshotNotFound, http.StatusNotFound, "snapshot_not_found"},
	{snapshot.ErrNoActiveSnapshot, http.StatusConflict, "no_active_snapshot"},
	{snapshot.ErrRevisionConflict, http.StatusConflict, "revision_conflict"},
	{snapshot.ErrInvalidSnapshot, http.StatusUnprocessableEntity, "invalid_snapshot"},

	{handoff.ErrInvalidTTL, http.StatusBadRequest, "invalid_ttl"},
	{handoff.ErrInvalidEnvelope, http.StatusBadRequest, "invalid_envelope"},
	{handoff.ErrHandoffExpired, http.StatusGone, "handoff_expired"},
	{handoff.ErrHandoffAbsent, http.StatusNotFound, "handoff_absent"},
	{handoff.ErrScopeMismatch, http.StatusConflict, "scope_mismatch"},
	{handoff.ErrAlreadyImported, http.StatusConflict, "already_imported"},
	{handoff.ErrPlanStale, http.StatusConflict, "handoff_changed"},
	{handoff.ErrUnknownVariant, http.StatusUnprocessableEntity, "invalid_payload"},
	{handoff.ErrInvalidPayload, http.StatusUnprocessableEntity, "invalid_payload"},
}

// asAPIError attaches an HTTP status and code to known domain errors.
// Anything else passes through and surfaces as a 500.
func asAPIError(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	for _, m := range errMappings {
		if errors.Is(err, m.target) {
			return apierr.New(m.status, m.code, err)
		}
	}
	return err
}
