package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatwarden/internal/cache"
	"chatwarden/internal/featureflags"
	"chatwarden/internal/matcher"
	"chatwarden/internal/models"
	"chatwarden/internal/notifications"
	"chatwarden/internal/repository"
	"chatwarden/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentNotice struct {
	ModeratorID int64
	Payload     notifications.Payload
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []sentNotice
	fail error
}

func (t *recordingTransport) Send(_ context.Context, moderatorID int64, payload notifications.Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.sent = append(t.sent, sentNotice{ModeratorID: moderatorID, Payload: payload})
	return nil
}

func (t *recordingTransport) setFail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = err
}

func (t *recordingTransport) notices() []sentNotice {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentNotice(nil), t.sent...)
}

// syncDispatcher delivers inline so tests observe effects without waiting on workers.
type syncDispatcher struct {
	*notifications.Dispatcher
}

func (d syncDispatcher) Enqueue(job notifications.Job) error {
	_ = d.Deliver(context.Background(), job)
	return nil
}

type enforcement struct {
	ChatID int64
	UserID int64
	Action string
}

type fakeEnforcer struct {
	mu      sync.Mutex
	actions []enforcement
}

func (f *fakeEnforcer) Ban(_ context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, enforcement{chatID, userID, "ban"})
	return nil
}

func (f *fakeEnforcer) Unban(_ context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, enforcement{chatID, userID, "unban"})
	return nil
}

func (f *fakeEnforcer) all() []enforcement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enforcement(nil), f.actions...)
}

type harness struct {
	db         *gorm.DB
	chats      repository.ChatRepository
	rules      repository.RuleRepository
	roster     repository.RosterRepository
	violations repository.ViolationRepository
	decisions  repository.DecisionRepository
	policies   repository.PolicyRepository
	lastSeen   repository.LastSeenRepository

	transport *recordingTransport
	enforcer  *fakeEnforcer

	gate      *AccessGate
	detector  *Detector
	router    *Router
	ledger    *Ledger
	rulesSvc  *RulesService
	policySvc *PolicyService
	rosterSvc *RosterService
	query     *QueryService
	pipeline  *Pipeline
}

type harnessOptions struct {
	flags    string
	defaults *models.PolicyDefaults
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	defaults := models.PolicyDefaults{Unset: true, Conflict: false}
	if o.defaults != nil {
		defaults = *o.defaults
	}

	db := testutil.NewSQLiteDB(t)
	h := &harness{
		db:         db,
		chats:      repository.NewChatRepository(db),
		rules:      repository.NewRuleRepository(db),
		roster:     repository.NewRosterRepository(db),
		violations: repository.NewViolationRepository(db),
		decisions:  repository.NewDecisionRepository(db),
		policies:   repository.NewPolicyRepository(db),
		lastSeen:   repository.NewLastSeenRepository(db),
		transport:  &recordingTransport{},
		enforcer:   &fakeEnforcer{},
	}
	users := repository.NewUserRepository(db)

	dispatcher := syncDispatcher{notifications.NewDispatcher(h.transport, h.lastSeen, notifications.DispatcherConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	})}
	m := matcher.NewRegex()
	enf := NewEnforcement(h.enforcer, h.chats, featureflags.NewManager(o.flags))

	h.gate = NewAccessGate(h.roster)
	h.detector = NewDetector(h.violations, m)
	h.router = NewRouter(h.roster, h.policies, h.lastSeen, h.violations, h.rules, dispatcher, defaults)
	h.ledger = NewLedger(h.violations, h.decisions, users, enf)
	h.rulesSvc = NewRulesService(h.rules, h.chats, cache.NewRuleCache(nil, 0), m)
	h.policySvc = NewPolicyService(h.policies, defaults)
	h.rosterSvc = NewRosterService(h.chats, users, h.roster)
	h.query = NewQueryService(h.violations, h.decisions, h.chats, h.ledger)
	h.pipeline = NewPipeline(h.chats, users, h.rulesSvc, h.detector, h.router, enf)
	return h
}

func withFlags(raw string) func(*harnessOptions) {
	return func(o *harnessOptions) { o.flags = raw }
}

func withDefaults(d models.PolicyDefaults) func(*harnessOptions) {
	return func(o *harnessOptions) { o.defaults = &d }
}

// rule inserts a rule with a fixed id.
func (h *harness) rule(t *testing.T, id uint, chatID int64, ruleType models.RuleType, text string, silent bool) *models.Rule {
	t.Helper()
	r := &models.Rule{ID: id, ChatID: chatID, RuleText: text, Type: ruleType, Activated: true, IsSilent: silent}
	require.NoError(t, h.db.Omit("Chat").Create(r).Error)
	return r
}

func (h *harness) policy(t *testing.T, moderatorID int64, values ...models.PolicyValue) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, h.db.Create(&models.NotificationPolicy{ModeratorID: moderatorID, Policy: v}).Error)
	}
}

func (h *harness) send(t *testing.T, chatID, violatorID int64, text string) *DetectResult {
	t.Helper()
	res, err := h.pipeline.OnMessage(context.Background(), SourceHTTP, InboundMessage{
		ChatID:     chatID,
		ViolatorID: violatorID,
		Username:   "violator",
		Text:       text,
		Timestamp:  time.Now().UTC(),
		PostID:     501,
	})
	require.NoError(t, err)
	return res
}

var errTransportDown = errors.New("transport down")
