package service

import (
	"context"
	"testing"
	"time"

	"chatwarden/internal/cache"
	"chatwarden/internal/matcher"
	"chatwarden/internal/models"
	"chatwarden/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_RecordsOneViolationPerMatchingRule(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateChat(t, h.db, 2)
	testutil.CreateUser(t, h.db, 99)
	r1 := h.rule(t, 1, 1, models.RuleTypeBan, "spam", false)
	r2 := h.rule(t, 2, 1, models.RuleTypeNotify, "link", false)
	r3 := h.rule(t, 3, 1, models.RuleTypeObserve, "crypto", false)
	broken := h.rule(t, 4, 1, models.RuleTypeNotify, "(unclosed", false)
	foreign := h.rule(t, 5, 2, models.RuleTypeBan, "spam", false)

	msg := &models.ViolatorMessage{ViolatorID: 99, ChatID: 1, Text: "spam LINK here", Timestamp: time.Now(), PostID: 1}
	res, err := h.detector.Detect(context.Background(), msg, []models.Rule{*r1, *r2, *r3, *broken, *foreign})
	require.NoError(t, err)

	require.Len(t, res.Violations, 2)
	assert.Equal(t, r1.ID, res.Violations[0].RuleID)
	assert.Equal(t, r2.ID, res.Violations[1].RuleID)
	assert.Equal(t, res.Violations[0].ViolatorMsgID, res.Violations[1].ViolatorMsgID)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, broken.ID, res.Warnings[0].RuleID)
	assert.Equal(t, models.CodeMatcher, res.Warnings[0].Code)
	assert.Equal(t, foreign.ID, res.Warnings[1].RuleID)

	t.Run("no match still stores the message", func(t *testing.T) {
		msg := &models.ViolatorMessage{ViolatorID: 99, ChatID: 1, Text: "hello", Timestamp: time.Now(), PostID: 2}
		res, err := h.detector.Detect(context.Background(), msg, []models.Rule{*r1})
		require.NoError(t, err)
		assert.Empty(t, res.Violations)
		assert.NotZero(t, msg.ID)
	})
}

func TestRouter_ObserveRulesNeverNotify(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateModerator(t, h.db, 1, 5)
	h.rule(t, 3, 1, models.RuleTypeObserve, "crypto", false)
	h.policy(t, 5, models.PolicyNotifyBan, models.PolicyNotifyNotification)

	res := h.send(t, 1, 99, "crypto giveaway")
	assert.Len(t, res.Violations, 1)
	assert.Empty(t, h.transport.notices())
}

func TestRouter_PolicyResolution(t *testing.T) {
	tests := []struct {
		name     string
		defaults models.PolicyDefaults
		rows     []models.PolicyValue
		want     bool
	}{
		{"unset notifies by default", models.PolicyDefaults{Unset: true}, nil, true},
		{"unset can be configured off", models.PolicyDefaults{Unset: false}, nil, false},
		{"conflict stays quiet by default", models.PolicyDefaults{Unset: true}, []models.PolicyValue{models.PolicyNotifyNotification, models.PolicyNotNotifyNotification}, false},
		{"conflict can be configured on", models.PolicyDefaults{Conflict: true}, []models.PolicyValue{models.PolicyNotifyNotification, models.PolicyNotNotifyNotification}, true},
		{"ban rows do not affect notification category", models.PolicyDefaults{Unset: true}, []models.PolicyValue{models.PolicyNotNotifyBan}, true},
		{"explicit opt out", models.PolicyDefaults{Unset: true}, []models.PolicyValue{models.PolicyNotNotifyNotification}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withDefaults(tt.defaults))
			testutil.CreateChat(t, h.db, 1)
			testutil.CreateModerator(t, h.db, 1, 5)
			h.rule(t, 2, 1, models.RuleTypeNotify, "promo", false)
			h.policy(t, 5, tt.rows...)

			h.send(t, 1, 99, "promo code")
			if tt.want {
				assert.Len(t, h.transport.notices(), 1)
			} else {
				assert.Empty(t, h.transport.notices())
			}
		})
	}
}

func TestRouter_OnlyActiveModeratorsOfTheChat(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateChat(t, h.db, 2)
	testutil.CreateModerator(t, h.db, 1, 5)
	testutil.CreateModerator(t, h.db, 1, 6)
	testutil.CreateModerator(t, h.db, 2, 7)
	testutil.CreateAdmin(t, h.db, 1, 8)
	require.NoError(t, h.roster.SetModerator(context.Background(), 1, 6, false))
	h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)

	h.send(t, 1, 99, "spam")
	notices := h.transport.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, int64(5), notices[0].ModeratorID)
}

func TestRouter_MarkerGatesRedelivery(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateModerator(t, h.db, 1, 5)
	testutil.CreateUser(t, h.db, 99)
	rule := h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	chat, err := h.chats.GetByID(context.Background(), 1)
	require.NoError(t, err)
	ctx := context.Background()

	late := time.Now().UTC().Add(time.Hour)
	require.NoError(t, h.lastSeen.Advance(ctx, 5, rule.ID, late))

	older := testutil.CreateViolation(t, h.db, rule, 99, late.Add(-time.Minute))
	got, err := h.router.Route(ctx, *older, *rule, *chat)
	require.NoError(t, err)
	assert.Empty(t, got, "already seen up to a later time")

	same := testutil.CreateViolation(t, h.db, rule, 99, late)
	got, err = h.router.Route(ctx, *same, *rule, *chat)
	require.NoError(t, err)
	assert.Empty(t, got, "marker equal to detected_at counts as seen")

	newer := testutil.CreateViolation(t, h.db, rule, 99, late.Add(time.Minute))
	got, err = h.router.Route(ctx, *newer, *rule, *chat)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	seen, _, err := h.lastSeen.Get(ctx, 5, rule.ID)
	require.NoError(t, err)
	assert.True(t, seen.Equal(late.Add(time.Minute)))
}

func TestRouter_DeactivatedChatRoutesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1, testutil.Inactive())
	testutil.CreateModerator(t, h.db, 1, 5)
	testutil.CreateUser(t, h.db, 99)
	rule := h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	chat, err := h.chats.GetByID(ctx, 1)
	require.NoError(t, err)
	require.False(t, chat.Activated)

	v := testutil.CreateViolation(t, h.db, rule, 99, time.Now().UTC())
	got, err := h.router.Route(ctx, *v, *rule, *chat)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, h.transport.notices())

	chat.Activated = true
	got, err = h.router.Route(ctx, *v, *rule, *chat)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRouter_TransportFailureThenCatchUp(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateModerator(t, h.db, 1, 5)
	rule := h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	ctx := context.Background()

	h.transport.setFail(errTransportDown)
	first := h.send(t, 1, 99, "spam one")
	second := h.send(t, 1, 99, "spam two")
	require.Len(t, first.Violations, 1)
	require.Len(t, second.Violations, 1)
	assert.Empty(t, h.transport.notices())

	_, found, err := h.lastSeen.Get(ctx, 5, rule.ID)
	require.NoError(t, err)
	assert.False(t, found, "failed delivery must not advance the marker")

	_, err = h.router.CatchUp(ctx, 5, models.RuleTypeBan)
	assert.Error(t, err)

	h.transport.setFail(nil)
	delivered, err := h.router.CatchUp(ctx, 5, models.RuleTypeBan)
	require.NoError(t, err)
	require.Len(t, delivered, 2)
	assert.Equal(t, first.Violations[0].ID, delivered[0].Payload.ViolationID)
	assert.Equal(t, second.Violations[0].ID, delivered[1].Payload.ViolationID)

	seen, found, err := h.lastSeen.Get(ctx, 5, rule.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, seen.Equal(second.Violations[0].DetectedAt))

	again, err := h.router.CatchUp(ctx, 5, models.RuleTypeBan)
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = h.router.CatchUp(ctx, 5, models.RuleTypeObserve)
	assert.True(t, models.HasCode(err, models.CodeForbidden), "observe feed is for admins")
}

func TestRouter_CatchUpIncludesDeactivatedRulesAndObserveForAdmins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateModerator(t, h.db, 1, 5)
	testutil.CreateAdmin(t, h.db, 1, 6)
	testutil.CreateUser(t, h.db, 99)
	ban := h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	observe := h.rule(t, 11, 1, models.RuleTypeObserve, "crypto", false)
	detected := time.Now().UTC().Add(-time.Hour)
	banned := testutil.CreateViolation(t, h.db, ban, 99, detected)
	observed := testutil.CreateViolation(t, h.db, observe, 99, detected)

	require.NoError(t, h.db.Model(&models.Rule{}).Where("id = ?", ban.ID).Update("activated", false).Error)

	delivered, err := h.router.CatchUp(ctx, 5, models.RuleTypeBan)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, banned.ID, delivered[0].Payload.ViolationID)

	delivered, err = h.router.CatchUp(ctx, 6, models.RuleTypeObserve)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, observed.ID, delivered[0].Payload.ViolationID)
	assert.Equal(t, models.RuleTypeObserve, delivered[0].Payload.RuleType)

	again, err := h.router.CatchUp(ctx, 6, models.RuleTypeObserve)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestAccessGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateModerator(t, h.db, 1, 5)
	testutil.CreateAdmin(t, h.db, 1, 6)

	ok, err := h.gate.CanModerate(ctx, 5, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.gate.CanAdminister(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok, "no hierarchy between roles")
	ok, err = h.gate.CanModerate(ctx, 6, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, h.gate.RequireModerateOrAdminister(ctx, 6, 1))
	assert.True(t, models.HasCode(h.gate.RequireAdminister(ctx, 5, 1), models.CodeForbidden))

	require.NoError(t, h.rosterSvc.SetChatActivated(ctx, 1, false))
	ok, err = h.gate.CanModerateOrAdminister(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = h.gate.CanAdminister(ctx, 6, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.gate.CanToggleChat(ctx, 6, 1)
	require.NoError(t, err)
	assert.True(t, ok, "admins can switch a deactivated chat back on")
	ok, err = h.gate.CanToggleChat(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateUser(t, h.db, 99)
	testutil.CreateModerator(t, h.db, 1, 5)
	rule := h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	v := testutil.CreateViolation(t, h.db, rule, 99, time.Now())

	_, err := h.ledger.RecordDecision(ctx, 424242, 5, models.DecisionBan)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = h.ledger.RecordDecision(ctx, v.ID, 777, models.DecisionBan)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = h.ledger.RecordDecision(ctx, v.ID, 5, models.Decision("KICK"))
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = h.ledger.CurrentStatus(ctx, 424242)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestPipeline_IngestionGate(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1, testutil.Inactive())
	testutil.CreateChat(t, h.db, 2, testutil.WithoutReadRights())
	h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	h.rule(t, 11, 2, models.RuleTypeBan, "spam", false)

	assert.Equal(t, SkipInactiveChat, h.send(t, 1, 99, "spam").Skipped)
	assert.Equal(t, SkipNoReadRights, h.send(t, 2, 99, "spam").Skipped)
	assert.Equal(t, SkipUnknownChat, h.send(t, 3, 99, "spam").Skipped)
	assert.Equal(t, SkipEmptyText, h.send(t, 1, 99, "   ").Skipped)

	var msgs int64
	require.NoError(t, h.db.Model(&models.ViolatorMessage{}).Count(&msgs).Error)
	assert.Zero(t, msgs)

	_, err := h.pipeline.OnMessage(context.Background(), SourceHTTP, InboundMessage{ChatID: 1, Text: "x"})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestPipeline_UpsertsViolatorAndEvaluatesInOrder(t *testing.T) {
	h := newHarness(t)
	testutil.CreateChat(t, h.db, 1)
	h.rule(t, 30, 1, models.RuleTypeObserve, "spam", false)
	h.rule(t, 20, 1, models.RuleTypeNotify, "spam", false)
	h.rule(t, 40, 1, models.RuleTypeBan, "spam", false)

	res, err := h.pipeline.OnMessage(context.Background(), SourceKafka, InboundMessage{
		ChatID: 1, ViolatorID: 99, Username: "bob", FullName: "Bob B", Text: "spam", PostID: 3,
	})
	require.NoError(t, err)
	require.Len(t, res.Violations, 3)
	assert.Equal(t, []uint{40, 20, 30}, []uint{res.Violations[0].RuleID, res.Violations[1].RuleID, res.Violations[2].RuleID})

	var user models.User
	require.NoError(t, h.db.First(&user, "user_id = ?", 99).Error)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, "Bob B", user.FullName)
}

func TestPipeline_AutoEnforcement(t *testing.T) {
	t.Run("flag on and rights granted", func(t *testing.T) {
		h := newHarness(t, withFlags("auto_enforce=on"))
		testutil.CreateChat(t, h.db, 1)
		h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
		h.rule(t, 11, 1, models.RuleTypeBan, "link", false)
		h.rule(t, 12, 1, models.RuleTypeNotify, "promo", false)

		h.send(t, 1, 99, "spam link")
		h.send(t, 1, 98, "promo")
		assert.Equal(t, []enforcement{{1, 99, "ban"}}, h.enforcer.all())
	})

	t.Run("no restrict rights", func(t *testing.T) {
		h := newHarness(t, withFlags("auto_enforce=on"))
		chat := testutil.CreateChat(t, h.db, 1)
		require.NoError(t, h.chats.UpdateRights(context.Background(), chat.ID, true, false, true))
		h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)

		h.send(t, 1, 99, "spam")
		assert.Empty(t, h.enforcer.all())
	})

	t.Run("flag scoped to other chat", func(t *testing.T) {
		h := newHarness(t, withFlags("auto_enforce=777"))
		testutil.CreateChat(t, h.db, 1)
		h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)

		h.send(t, 1, 99, "spam")
		assert.Empty(t, h.enforcer.all())
	})

	t.Run("decisions are applied", func(t *testing.T) {
		h := newHarness(t, withFlags("auto_enforce=1"))
		testutil.CreateChat(t, h.db, 1)
		testutil.CreateModerator(t, h.db, 1, 5)
		h.rule(t, 10, 1, models.RuleTypeNotify, "spam", false)

		res := h.send(t, 1, 99, "spam")
		require.Len(t, res.Violations, 1)
		_, err := h.ledger.RecordDecision(context.Background(), res.Violations[0].ID, 5, models.DecisionUnban)
		require.NoError(t, err)
		h.ledger.Wait()
		assert.Equal(t, []enforcement{{1, 99, "unban"}}, h.enforcer.all())
	})
}

func TestRulesService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)

	_, err := h.rulesSvc.Create(ctx, 1, RuleInput{RuleText: "(", Type: "BAN"})
	assert.True(t, models.HasCode(err, models.CodeValidation))
	_, err = h.rulesSvc.Create(ctx, 1, RuleInput{RuleText: "ok", Type: "MUTE"})
	assert.True(t, models.HasCode(err, models.CodeValidation))
	_, err = h.rulesSvc.Create(ctx, 404, RuleInput{RuleText: "ok", Type: "BAN"})
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	rule, err := h.rulesSvc.Create(ctx, 1, RuleInput{RuleText: " free money ", ExplanationText: "scam", Type: "notify"})
	require.NoError(t, err)
	assert.Equal(t, "free money", rule.RuleText)
	assert.True(t, rule.Activated)

	updated, err := h.rulesSvc.Update(ctx, rule.ID, RuleInput{RuleText: "free money", Type: "BAN", IsSilent: true})
	require.NoError(t, err)
	assert.Equal(t, models.RuleTypeBan, updated.Type)
	assert.True(t, updated.IsSilent)

	_, err = h.rulesSvc.SetActivated(ctx, rule.ID, false)
	require.NoError(t, err)
	active, err := h.rulesSvc.ActiveRules(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active)

	listed, err := h.rulesSvc.ListForChat(ctx, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Zero(t, listed[0].ViolationCount)
}

func TestRulesService_InvalidatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc := NewRulesService(h.rules, h.chats, cache.NewRuleCache(rdb, time.Minute), matcher.NewRegex())

	rule, err := svc.Create(ctx, 1, RuleInput{RuleText: "spam", Type: "BAN"})
	require.NoError(t, err)
	active, err := svc.ActiveRules(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, mr.Exists(cache.ActiveRulesKey(1)))

	_, err = svc.SetActivated(ctx, rule.ID, false)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.ActiveRulesKey(1)))

	active, err = svc.ActiveRules(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPolicyService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateUser(t, h.db, 5)
	h.policy(t, 5, models.PolicyNotifyBan, models.PolicyNotNotifyBan)

	eff, err := h.policySvc.Effective(ctx, 5)
	require.NoError(t, err)
	require.Len(t, eff, 2)
	assert.Equal(t, models.PolicyStateConflict, eff[0].State)
	assert.False(t, eff[0].Notify)
	assert.Equal(t, models.PolicyStateUnset, eff[1].State)
	assert.True(t, eff[1].Notify)

	require.NoError(t, h.policySvc.SetCategory(ctx, 5, models.CategoryBan, true))
	require.NoError(t, h.policySvc.SetCategory(ctx, 5, models.CategoryNotification, false))
	eff, err = h.policySvc.Effective(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyStateNotify, eff[0].State)
	assert.Equal(t, models.PolicyStateNotNotify, eff[1].State)

	err = h.policySvc.SetCategory(ctx, 404, models.CategoryBan, true)
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestQueryService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)
	testutil.CreateChat(t, h.db, 2)
	testutil.CreateModerator(t, h.db, 1, 5)
	h.rule(t, 10, 1, models.RuleTypeBan, "spam", false)
	h.rule(t, 20, 2, models.RuleTypeBan, "spam", false)

	res := h.send(t, 1, 99, "spam here")
	h.send(t, 2, 99, "spam there")
	vID := res.Violations[0].ID
	_, err := h.ledger.RecordDecision(ctx, vID, 5, models.DecisionBan)
	require.NoError(t, err)

	view, err := h.query.Violation(ctx, vID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBan, view.Status)
	assert.Len(t, view.History, 1)
	assert.Equal(t, "spam here", view.MessageText)

	chatID, err := h.query.ChatOf(ctx, vID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chatID)

	page, err := h.query.RuleViolations(ctx, 10, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	found, err := h.query.Search(ctx, 5, "spam", 0)
	require.NoError(t, err)
	require.Len(t, found, 1, "only chats the moderator works in")
	assert.Equal(t, int64(1), found[0].ChatID)

	_, err = h.query.Search(ctx, 5, " ", 10)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	mod := int64(5)
	decisions, err := h.query.ChatDecisions(ctx, 1, &mod, 10, 0)
	require.NoError(t, err)
	assert.Len(t, decisions, 1)

	stats, err := h.rosterSvc.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Violations)
}

func TestRosterService_SetModeratorKeepsNames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.CreateChat(t, h.db, 1)
	require.NoError(t, h.rosterSvc.SetModerator(ctx, 1, models.User{ID: 5, Username: "mod", FullName: "Mod One"}, true))
	require.NoError(t, h.rosterSvc.SetModerator(ctx, 1, models.User{ID: 5}, false))

	mods, err := h.rosterSvc.Moderators(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.False(t, mods[0].Activated)
	assert.Equal(t, "mod", mods[0].Username)

	assert.True(t, models.HasCode(h.rosterSvc.SetAdmin(ctx, 1, models.User{}, true), models.CodeValidation))
	_, err = h.rosterSvc.UpsertChat(ctx, ChatInput{})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}
