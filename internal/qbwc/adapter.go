// Package qbwc implements the server side of the QuickBooks Web Connector
// protocol: six SOAP operations the desktop agent invokes on its polling
// schedule. The adapter is purely reactive; it tolerates out-of-order calls
// and stale tickets, and no internal error ever crosses the SOAP boundary —
// everything degrades to the protocol's own sentinel values.
package qbwc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"qbsync/internal/config"
	"qbsync/internal/database"
	"qbsync/internal/metrics"
	"qbsync/internal/models"
	"qbsync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the slice of the database the adapter owns: work item status
// transitions and sync log outcomes for the current conversation.
type Store interface {
	ClaimNextWorkItem(ctx context.Context, organizationID string) (*models.WorkItem, error)
	GetWorkItem(ctx context.Context, id int64) (*models.WorkItem, error)
	MarkWorkItemCompleted(ctx context.Context, id int64, responseBody string) error
	MarkWorkItemFailed(ctx context.Context, id int64, errorMessage string) error
	RequeueIfRetryable(ctx context.Context, id int64) (bool, error)
	ReleaseClaim(ctx context.Context, id int64) error
	CreateSyncLogEntry(ctx context.Context, entry *models.SyncLogEntry) error
}

// Notifier is told about work items that ran out of attempts.
type Notifier interface {
	WorkItemExhausted(ctx context.Context, item *models.WorkItem, reason string)
}

// AuthOutcome is the typed result of Authenticate; the SOAP handler
// translates it to the protocol's sentinel strings at the boundary.
type AuthOutcome int

const (
	// AuthInvalid covers bad credentials and internal failures alike: the
	// protocol has no channel for generic errors, so both map to "nvu".
	AuthInvalid AuthOutcome = iota
	// AuthNoWork tells the agent there is nothing to do this cycle.
	AuthNoWork
	// AuthOK means a ticket was minted together with a claimed work item.
	AuthOK
)

type AuthResult struct {
	Outcome     AuthOutcome
	Ticket      string
	CompanyFile string
}

type Adapter struct {
	cfg      config.QBWCConfig
	store    Store
	sessions repository.SessionRepository
	notifier Notifier
	logger   zerolog.Logger
}

func NewAdapter(cfg config.QBWCConfig, store Store, sessions repository.SessionRepository, notifier Notifier, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		notifier: notifier,
		logger:   logger.With().Str("component", "qbwc").Logger(),
	}
}

// Authenticate validates the agent's credentials and, inseparably, claims
// the next pending work item: a ticket is only ever issued together with
// claimed work.
func (a *Adapter) Authenticate(ctx context.Context, username, password string) AuthResult {
	metrics.IncQBWCOp("authenticate")

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) == 1
	if !userOK || !passOK {
		a.logger.Warn().Str("username", username).Msg("authentication rejected")
		return AuthResult{Outcome: AuthInvalid}
	}

	item, err := a.store.ClaimNextWorkItem(ctx, a.cfg.OrganizationID)
	if err != nil {
		a.logger.Error().Err(err).Msg("queue read failed during authenticate")
		return AuthResult{Outcome: AuthInvalid}
	}
	if item == nil {
		return AuthResult{Outcome: AuthNoWork}
	}

	now := time.Now()
	session := &models.Session{
		Ticket:            uuid.NewString(),
		OrganizationID:    a.cfg.OrganizationID,
		ClaimedWorkItemID: item.ID,
		StartedAt:         now,
		LastSeen:          now,
	}
	if err := a.sessions.Put(ctx, session); err != nil {
		a.logger.Error().Err(err).Msg("failed to store session, releasing claim")
		if relErr := a.store.ReleaseClaim(ctx, item.ID); relErr != nil {
			a.logger.Error().Err(relErr).Int64("work_item_id", item.ID).Msg("failed to release claim")
		}
		return AuthResult{Outcome: AuthInvalid}
	}

	a.logger.Info().
		Str("ticket", session.Ticket).
		Int64("work_item_id", item.ID).
		Str("request_type", item.RequestType).
		Msg("session opened")

	return AuthResult{Outcome: AuthOK, Ticket: session.Ticket, CompanyFile: a.cfg.CompanyFile}
}

// SendRequest returns the qbXML payload of the session's claimed work item.
// An unknown ticket or a session without work yields an empty string: the
// agent cannot interpret SOAP faults, so silence is the error channel.
func (a *Adapter) SendRequest(ctx context.Context, ticket, companyFileName string) string {
	metrics.IncQBWCOp("sendRequestXML")

	session, err := a.sessions.Get(ctx, ticket)
	if err != nil {
		a.logger.Error().Err(err).Str("ticket", ticket).Msg("session lookup failed")
		return ""
	}
	if session == nil {
		a.logger.Warn().Str("ticket", ticket).Msg("sendRequestXML with unknown ticket")
		return ""
	}

	// Lazy bind: the company file name is only known once the agent tells us.
	if session.CompanyFileName == "" && companyFileName != "" {
		session.CompanyFileName = companyFileName
	}
	session.LastSeen = time.Now()
	if err := a.sessions.Put(ctx, session); err != nil {
		a.logger.Error().Err(err).Str("ticket", ticket).Msg("failed to refresh session")
	}

	if session.ClaimedWorkItemID == 0 {
		return ""
	}

	item, err := a.store.GetWorkItem(ctx, session.ClaimedWorkItemID)
	if err != nil {
		a.logger.Error().Err(err).Int64("work_item_id", session.ClaimedWorkItemID).Msg("failed to load claimed work item")
		return ""
	}
	return item.Payload
}

// ReceiveResponse is the completion signal. A non-zero hresult means the
// desktop reported an error: the item fails and -1 tells the agent to
// abort. Otherwise the item completes and 100 reports the one-shot unit of
// work as fully done.
func (a *Adapter) ReceiveResponse(ctx context.Context, ticket, response, hresult, message string) int {
	metrics.IncQBWCOp("receiveResponseXML")

	session, err := a.sessions.Get(ctx, ticket)
	if err != nil || session == nil {
		a.logger.Warn().Str("ticket", ticket).Msg("receiveResponseXML with unknown ticket")
		return -1
	}
	if session.ClaimedWorkItemID == 0 {
		return -1
	}
	itemID := session.ClaimedWorkItemID

	if hresult != "" && hresult != "0" {
		a.failClaimed(ctx, session, message)
		a.clearClaim(ctx, session)
		return -1
	}

	if err := a.store.MarkWorkItemCompleted(ctx, itemID, response); err != nil {
		a.logger.Error().Err(err).Int64("work_item_id", itemID).Msg("failed to mark work item completed")
		return -1
	}
	a.writeOutcomeLog(ctx, session, itemID, models.SyncStatusCompleted, response, "")
	metrics.IncWorkItemTransition(models.WorkStatusCompleted)

	a.logger.Info().Str("ticket", ticket).Int64("work_item_id", itemID).Msg("work item completed")
	a.clearClaim(ctx, session)
	return 100
}

// CloseConnection discards the session. Idempotent: closing an unknown
// ticket still reports OK.
func (a *Adapter) CloseConnection(ctx context.Context, ticket string) string {
	metrics.IncQBWCOp("closeConnection")

	if err := a.sessions.Delete(ctx, ticket); err != nil {
		a.logger.Error().Err(err).Str("ticket", ticket).Msg("failed to delete session")
	}
	return "OK"
}

// LastError returns a static placeholder; per-ticket error memory is a
// deliberate simplification.
func (a *Adapter) LastError(ctx context.Context, ticket string) string {
	metrics.IncQBWCOp("getLastError")
	return "NoOp"
}

// ConnectionError is treated like a failed receiveResponseXML: the claimed
// item fails and the session is discarded.
func (a *Adapter) ConnectionError(ctx context.Context, ticket, hresult, message string) string {
	metrics.IncQBWCOp("connectionError")

	session, err := a.sessions.Get(ctx, ticket)
	if err == nil && session != nil && session.ClaimedWorkItemID != 0 {
		a.failClaimed(ctx, session, message)
	}
	if err := a.sessions.Delete(ctx, ticket); err != nil {
		a.logger.Error().Err(err).Str("ticket", ticket).Msg("failed to delete session")
	}
	return "done"
}

// StartSweep expires idle sessions on a timer and releases their claimed
// work items back to pending so abandoned conversations never strand work.
func (a *Adapter) StartSweep(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *Adapter) sweep(ctx context.Context) {
	expired, err := a.sessions.ReapExpired(ctx, a.cfg.SessionTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("session sweep failed")
		return
	}
	for _, session := range expired {
		if session.ClaimedWorkItemID == 0 {
			continue
		}
		err := a.store.ReleaseClaim(ctx, session.ClaimedWorkItemID)
		if err != nil && !errors.Is(err, database.ErrInvalidTransition) {
			a.logger.Error().Err(err).Int64("work_item_id", session.ClaimedWorkItemID).Msg("failed to release abandoned claim")
			continue
		}
		a.logger.Warn().
			Str("ticket", session.Ticket).
			Int64("work_item_id", session.ClaimedWorkItemID).
			Msg("expired idle session, released claim")
	}
}

func (a *Adapter) failClaimed(ctx context.Context, session *models.Session, message string) {
	itemID := session.ClaimedWorkItemID
	if message == "" {
		message = "QuickBooks reported an error"
	}

	if err := a.store.MarkWorkItemFailed(ctx, itemID, message); err != nil {
		a.logger.Error().Err(err).Int64("work_item_id", itemID).Msg("failed to mark work item failed")
		return
	}
	a.writeOutcomeLog(ctx, session, itemID, models.SyncStatusFailed, "", message)
	metrics.IncWorkItemTransition(models.WorkStatusFailed)

	// The agent's next poll is the retry trigger, so failed items go back
	// to pending right away while they still have attempts left.
	requeued, err := a.store.RequeueIfRetryable(ctx, itemID)
	if err != nil {
		a.logger.Error().Err(err).Int64("work_item_id", itemID).Msg("failed to requeue work item")
		return
	}
	if requeued {
		a.logger.Info().Int64("work_item_id", itemID).Msg("work item requeued for next poll")
		return
	}

	a.logger.Error().Int64("work_item_id", itemID).Str("reason", message).Msg("work item permanently failed")
	if a.notifier != nil {
		if item, err := a.store.GetWorkItem(ctx, itemID); err == nil {
			a.notifier.WorkItemExhausted(ctx, item, message)
		}
	}
}

func (a *Adapter) writeOutcomeLog(ctx context.Context, session *models.Session, itemID int64, status, responseData, errorMessage string) {
	requestData, _ := json.Marshal(map[string]any{"work_item_id": itemID})
	entry := &models.SyncLogEntry{
		OrganizationID: session.OrganizationID,
		SyncType:       models.SyncTypeJobCompleted,
		Provider:       models.ProviderQBD,
		Status:         status,
		RequestData:    string(requestData),
	}
	if item, err := a.store.GetWorkItem(ctx, itemID); err == nil {
		entry.SyncType = item.RequestType
	}
	if responseData != "" {
		entry.ResponseData = &responseData
	}
	if errorMessage != "" {
		entry.ErrorMessage = &errorMessage
	}
	if err := a.store.CreateSyncLogEntry(ctx, entry); err != nil {
		a.logger.Error().Err(err).Int64("work_item_id", itemID).Msg("failed to write sync log entry")
	}
}

func (a *Adapter) clearClaim(ctx context.Context, session *models.Session) {
	session.ClaimedWorkItemID = 0
	session.LastSeen = time.Now()
	if err := a.sessions.Put(ctx, session); err != nil {
		a.logger.Error().Err(err).Str("ticket", session.Ticket).Msg("failed to clear session claim")
	}
}
