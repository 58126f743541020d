package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/models"
	"github.com/develper21/kyvro/internal/queue"
	"github.com/develper21/kyvro/internal/repository"
	"github.com/develper21/kyvro/internal/secrets"
	"github.com/develper21/kyvro/internal/whatsapp"
)

// providerIDCacheTTL bounds how long the provider-message-id -> message-id
// mapping is kept for status callbacks.
const providerIDCacheTTL = 24 * time.Hour

// SendError wraps a retry-worthy delivery outcome so the queue's retry
// policy fires. Terminal outcomes never become errors; they are returned
// as values and persisted on the first attempt.
type SendError struct {
	Result whatsapp.SendResult
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Result.Kind, e.Result.Message)
}

// RetryAfter exposes the provider's advertised rate-limit window to the
// queue's backoff.
func (e *SendError) RetryAfter() time.Duration {
	return e.Result.RetryAfter
}

// run is one campaign's in-flight dispatch.
type run struct {
	queue *queue.Queue
	wg    sync.WaitGroup

	mu            sync.Mutex
	halted        bool
	total         int
	processed     int
	sent          int
	failed        int
	lastMilestone int
}

// Dispatcher owns every active campaign dispatch in the process. Each
// campaign gets its own queue instance so pausing or clearing one campaign
// never stalls another.
type Dispatcher struct {
	cfg      *config.Config
	repo     repository.Repository
	sender   whatsapp.Sender
	secrets  secrets.Store
	cache    *redis.Client
	notifier Notifier
	breaker  *Breaker
	logger   *zap.Logger

	mu     sync.Mutex
	active map[int64]*run
}

func New(
	cfg *config.Config,
	repo repository.Repository,
	sender whatsapp.Sender,
	store secrets.Store,
	cache *redis.Client,
	notifier Notifier,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		repo:     repo,
		sender:   sender,
		secrets:  store,
		cache:    cache,
		notifier: notifier,
		breaker:  NewBreaker(&cfg.WhatsApp.CircuitBreaker, logger),
		logger:   logger,
		active:   make(map[int64]*run),
	}
}

// Start begins dispatch for a draft or paused campaign. It returns once
// every pending message has been enqueued; delivery itself runs in the
// background until the campaign reaches a terminal state or is paused.
func (d *Dispatcher) Start(ctx context.Context, campaignID int64) error {
	campaign, err := d.repo.Campaign().GetCampaign(campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if !campaign.Dispatchable() {
		return fmt.Errorf("%w: campaign %d is %s", ErrCampaignNotDispatchable, campaignID, campaign.Status)
	}

	return d.begin(ctx, campaign)
}

// RecoverStuckCampaigns resumes dispatch for campaigns left in the sending
// state by a crash. Delivery is at-least-once: a message whose send was in
// flight when the process died is still pending and will be sent again.
func (d *Dispatcher) RecoverStuckCampaigns(ctx context.Context) error {
	campaigns, err := d.repo.Campaign().ListCampaignsByStatus(models.CampaignStatusSending)
	if err != nil {
		return fmt.Errorf("failed to list sending campaigns: %w", err)
	}

	for _, campaign := range campaigns {
		d.mu.Lock()
		_, alreadyRunning := d.active[campaign.ID]
		d.mu.Unlock()
		if alreadyRunning {
			continue
		}

		d.logger.Info("Recovering interrupted campaign", zap.Int64("campaign_id", campaign.ID))
		if err := d.begin(ctx, campaign); err != nil {
			d.logger.Error("Failed to recover campaign",
				zap.Int64("campaign_id", campaign.ID),
				zap.Error(err))
		}
	}

	return nil
}

// Pause stops starting new sends for the campaign and discards its queued
// tasks. Messages whose task had not started stay pending; sends already
// on the wire finish but their outcome is not persisted.
func (d *Dispatcher) Pause(campaignID int64) error {
	d.mu.Lock()
	r, ok := d.active[campaignID]
	d.mu.Unlock()
	if !ok {
		return ErrCampaignNotActive
	}

	r.queue.Pause()

	// Persist the paused status before clearing. Clearing settles every
	// queued future at once, and supervise must never observe a drained
	// queue while the campaign still reads as sending.
	if err := d.repo.Campaign().UpdateCampaignStatus(campaignID, models.CampaignStatusPaused); err != nil {
		return fmt.Errorf("failed to mark campaign paused: %w", err)
	}
	r.queue.Clear()

	d.logger.Info("Campaign paused", zap.Int64("campaign_id", campaignID))
	return nil
}

// Resume re-enters dispatch for a paused campaign. Only messages still
// pending are resubmitted; sent, delivered and failed messages never get a
// second queue task.
func (d *Dispatcher) Resume(ctx context.Context, campaignID int64) error {
	return d.Start(ctx, campaignID)
}

// Stats returns queue statistics for an active campaign dispatch.
func (d *Dispatcher) Stats(campaignID int64) (queue.Stats, error) {
	d.mu.Lock()
	r, ok := d.active[campaignID]
	d.mu.Unlock()
	if !ok {
		return queue.Stats{}, ErrCampaignNotActive
	}
	return r.queue.Stats(), nil
}

// ActiveCampaigns lists campaign ids with an in-flight dispatch.
func (d *Dispatcher) ActiveCampaigns() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	return ids
}

// BreakerState reports the provider circuit breaker for health checks.
func (d *Dispatcher) BreakerState() (state string, requests, failures uint32) {
	requests, failures = d.breaker.Counts()
	return d.breaker.State(), requests, failures
}

// Shutdown halts every active dispatch without changing campaign status.
// Campaigns stay in the sending state and are picked up by crash recovery
// on the next start.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	runs := make([]*run, 0, len(d.active))
	for _, r := range d.active {
		runs = append(runs, r)
	}
	d.mu.Unlock()

	for _, r := range runs {
		// Halt the run before clearing so supervise sees an interrupted
		// dispatch, not a completed one, once the queue drains.
		r.mu.Lock()
		r.halted = true
		r.mu.Unlock()

		r.queue.Pause()
		r.queue.Clear()
	}
	d.logger.Info("Dispatcher shut down", zap.Int("halted_campaigns", len(runs)))
}

// begin performs steps 2-5 of the dispatch algorithm for a campaign whose
// status has already been validated.
func (d *Dispatcher) begin(ctx context.Context, campaign *models.Campaign) error {
	d.mu.Lock()
	if _, exists := d.active[campaign.ID]; exists {
		d.mu.Unlock()
		return ErrDispatchInProgress
	}
	// Reserve the slot before any I/O so two concurrent starts cannot
	// both pass the check. The queue is built here, not in prepare: the
	// moment the run is visible in d.active, Stats, Pause and Shutdown
	// may reach for it.
	r := &run{
		queue: queue.New(queue.Config{
			Concurrency:   d.cfg.Dispatch.Concurrency,
			RatePerSecond: d.cfg.Dispatch.RatePerSecond,
			RetryDelay:    d.cfg.Dispatch.RetryDelay(),
		}, d.logger.With(zap.Int64("campaign_id", campaign.ID))),
	}
	d.active[campaign.ID] = r
	d.mu.Unlock()

	err := d.prepare(ctx, campaign, r)
	if err != nil {
		d.mu.Lock()
		delete(d.active, campaign.ID)
		d.mu.Unlock()
		return err
	}

	go d.supervise(campaign.ID, r)
	return nil
}

func (d *Dispatcher) prepare(ctx context.Context, campaign *models.Campaign, r *run) error {
	cred, err := d.secrets.GetCredential(ctx)
	if err != nil {
		return fmt.Errorf("credential lookup failed: %w", err)
	}
	if cred == nil {
		if statusErr := d.repo.Campaign().UpdateCampaignStatus(campaign.ID, models.CampaignStatusFailed); statusErr != nil {
			d.logger.Error("Failed to mark campaign failed",
				zap.Int64("campaign_id", campaign.ID),
				zap.Error(statusErr))
		}
		return ErrNoCredential
	}

	contacts, err := d.repo.Contact().GetContactsByCampaign(campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}

	existing, err := d.repo.Message().GetMessagesByCampaign(campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to load existing messages: %w", err)
	}
	byContact := make(map[int64]*models.Message, len(existing))
	for _, msg := range existing {
		byContact[msg.ContactID] = msg
	}

	if err := d.repo.Campaign().UpdateCampaignStatus(campaign.ID, models.CampaignStatusSending); err != nil {
		return fmt.Errorf("failed to mark campaign sending: %w", err)
	}
	if err := d.repo.Campaign().SetTotalContacts(campaign.ID, len(contacts)); err != nil {
		return fmt.Errorf("failed to record contact total: %w", err)
	}

	// One message per (campaign, contact): create pending records only
	// for contacts with no message yet. Terminal messages are left alone
	// so resuming never duplicates work.
	pending := make([]*models.Message, 0, len(contacts))
	for _, contact := range contacts {
		if msg, ok := byContact[contact.ID]; ok {
			if msg.Status == models.MessageStatusPending {
				pending = append(pending, msg)
			}
			continue
		}

		msg := &models.Message{
			CampaignID:       campaign.ID,
			ContactID:        contact.ID,
			PhoneNumber:      whatsapp.NormalizePhone(contact.PhoneNumber, d.cfg.WhatsApp.DefaultCountryCode),
			TemplateName:     campaign.TemplateName,
			TemplateLanguage: campaign.TemplateLanguage,
			Variables:        renderBindings(contact),
			Status:           models.MessageStatusPending,
		}
		id, err := d.repo.Message().CreateMessage(msg)
		if err != nil {
			return fmt.Errorf("failed to create message for contact %d: %w", contact.ID, err)
		}
		msg.ID = id
		pending = append(pending, msg)
	}

	r.mu.Lock()
	r.total = len(contacts)
	r.processed = len(contacts) - len(pending)
	r.sent = campaign.SentCount
	r.failed = campaign.FailedCount
	r.mu.Unlock()

	for _, msg := range pending {
		d.enqueue(ctx, r, msg)
	}

	d.logger.Info("Campaign dispatch started",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int("contacts", len(contacts)),
		zap.Int("pending", len(pending)))

	return nil
}

// enqueue submits one message's send task and arranges persistence of its
// settled outcome.
func (d *Dispatcher) enqueue(ctx context.Context, r *run, msg *models.Message) {
	op := func(opCtx context.Context) (any, error) {
		result := d.send(opCtx, msg)
		if !result.OK && result.Kind.Retryable() {
			// Retry-worthy failures become errors so the queue's
			// backoff-and-retry applies; everything else settles now.
			return nil, &SendError{Result: result}
		}
		return result, nil
	}

	future := r.queue.Submit(ctx, op, 0, queue.Options{
		MaxAttempts: d.cfg.Dispatch.MaxAttempts,
	})

	r.wg.Add(1)
	go d.awaitOutcome(r, msg, future)
}

// send performs one delivery attempt through the circuit breaker.
func (d *Dispatcher) send(ctx context.Context, msg *models.Message) whatsapp.SendResult {
	var result whatsapp.SendResult

	err := d.breaker.Execute(func() error {
		result = d.sender.SendTemplate(ctx, whatsapp.SendRequest{
			RecipientPhone:   msg.PhoneNumber,
			TemplateName:     msg.TemplateName,
			LanguageCode:     msg.TemplateLanguage,
			VariableBindings: decodeBindings(msg.Variables),
		})
		if !result.OK && result.Kind.Retryable() {
			return &SendError{Result: result}
		}
		return nil
	})

	if errors.Is(err, ErrBreakerOpen) {
		return whatsapp.SendResult{
			Kind:    whatsapp.KindProviderInternal,
			Message: ErrBreakerOpen.Error(),
		}
	}
	return result
}

// awaitOutcome persists one message's settled outcome and rolls it up into
// the campaign's counters and progress events.
func (d *Dispatcher) awaitOutcome(r *run, msg *models.Message, future *queue.Future) {
	defer r.wg.Done()

	value, err := future.Wait(context.Background())
	if errors.Is(err, queue.ErrCleared) {
		// Deliberately paused or cleared: the message stays pending and
		// is not a failure.
		return
	}

	// A result landing after a pause request must not resurrect state:
	// only campaigns still sending accept writes.
	campaign, loadErr := d.repo.Campaign().GetCampaign(msg.CampaignID)
	if loadErr != nil {
		d.logger.Error("Failed to reload campaign for outcome",
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Error(loadErr))
		return
	}
	if campaign.Status != models.CampaignStatusSending {
		d.logger.Info("Discarding outcome for inactive campaign",
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Int64("message_id", msg.ID),
			zap.String("campaign_status", string(campaign.Status)))
		return
	}

	if err != nil {
		// Retry budget exhausted on a retry-worthy error.
		kind, text := whatsapp.KindUnknown, err.Error()
		var sendErr *SendError
		if errors.As(err, &sendErr) {
			kind, text = sendErr.Result.Kind, sendErr.Result.Message
		}
		d.recordFailure(r, msg, kind, text)
		return
	}

	result, ok := value.(whatsapp.SendResult)
	if !ok {
		d.recordFailure(r, msg, whatsapp.KindUnknown, "internal: unexpected task result type")
		return
	}

	if !result.OK {
		d.recordFailure(r, msg, result.Kind, result.Message)
		return
	}

	if err := d.repo.Message().UpdateMessageStatus(msg.ID, models.MessageStatusSent, &result.ProviderMessageID, nil); err != nil {
		d.logger.Error("Failed to persist sent status",
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
	}
	if err := d.repo.Campaign().IncrementCampaignCounts(msg.CampaignID, 1, 0, 0); err != nil {
		d.logger.Error("Failed to increment sent count",
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Error(err))
	}
	d.cacheProviderID(result.ProviderMessageID, msg.ID)

	r.mu.Lock()
	r.processed++
	r.sent++
	d.emitProgressLocked(r, msg.CampaignID)
	r.mu.Unlock()
}

func (d *Dispatcher) recordFailure(r *run, msg *models.Message, kind whatsapp.ErrorKind, text string) {
	errText := fmt.Sprintf("%s: %s", kind, text)
	if err := d.repo.Message().UpdateMessageStatus(msg.ID, models.MessageStatusFailed, nil, &errText); err != nil {
		d.logger.Error("Failed to persist failed status",
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
	}
	if err := d.repo.Campaign().IncrementCampaignCounts(msg.CampaignID, 0, 0, 1); err != nil {
		d.logger.Error("Failed to increment failed count",
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Error(err))
	}

	d.notifier.MessageFailed(MessageFailedEvent{
		CampaignID:   msg.CampaignID,
		ContactID:    msg.ContactID,
		ErrorKind:    kind,
		ErrorMessage: text,
	})

	r.mu.Lock()
	r.processed++
	r.failed++
	d.emitProgressLocked(r, msg.CampaignID)
	r.mu.Unlock()
}

// emitProgressLocked fires a progress event each time dispatch crosses a
// configured percentage milestone. Caller holds r.mu.
func (d *Dispatcher) emitProgressLocked(r *run, campaignID int64) {
	if r.total == 0 {
		return
	}
	step := d.cfg.Dispatch.ProgressStep
	if step <= 0 {
		step = 25
	}

	percent := r.processed * 100 / r.total
	milestone := percent / step * step
	if milestone <= r.lastMilestone && percent != 100 {
		return
	}
	r.lastMilestone = milestone

	d.notifier.CampaignProgress(ProgressEvent{
		CampaignID:    campaignID,
		Percent:       percent,
		SentCount:     r.sent,
		TotalContacts: r.total,
	})
}

// supervise waits for every task to settle, then finalizes the campaign.
func (d *Dispatcher) supervise(campaignID int64, r *run) {
	if err := r.queue.Drain(context.Background()); err != nil {
		d.logger.Error("Queue drain failed", zap.Int64("campaign_id", campaignID), zap.Error(err))
	}
	r.wg.Wait()

	d.mu.Lock()
	delete(d.active, campaignID)
	d.mu.Unlock()

	r.mu.Lock()
	halted := r.halted
	r.mu.Unlock()
	if halted {
		// Shutdown cleared the queue mid-run. The campaign keeps its
		// sending status so recovery resumes it on the next start.
		d.logger.Info("Dispatch interrupted by shutdown", zap.Int64("campaign_id", campaignID))
		return
	}

	campaign, err := d.repo.Campaign().GetCampaign(campaignID)
	if err != nil {
		d.logger.Error("Failed to reload campaign for completion",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err))
		return
	}
	if campaign.Status != models.CampaignStatusSending {
		// Paused or failed mid-run; not a completion.
		return
	}

	if err := d.repo.Campaign().UpdateCampaignStatus(campaignID, models.CampaignStatusCompleted); err != nil {
		d.logger.Error("Failed to mark campaign completed",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err))
		return
	}

	d.notifier.CampaignCompleted(CompletedEvent{
		CampaignID:     campaignID,
		SentCount:      campaign.SentCount,
		DeliveredCount: campaign.DeliveredCount,
		FailedCount:    campaign.FailedCount,
	})
}

// cacheProviderID maps the provider-assigned id to our message id so
// status callbacks resolve without a table scan. Cache loss is harmless;
// the repository lookup is the fallback.
func (d *Dispatcher) cacheProviderID(providerMessageID string, messageID int64) {
	if d.cache == nil || providerMessageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("wamid:%s", providerMessageID)
	if err := d.cache.Set(ctx, key, messageID, providerIDCacheTTL).Err(); err != nil {
		d.logger.Warn("Failed to cache provider message id",
			zap.String("provider_message_id", providerMessageID),
			zap.Error(err))
	}
}

// renderBindings snapshots the contact-derived template variables at
// enqueue time as a JSON array.
func renderBindings(contact *models.Contact) string {
	bindings, err := json.Marshal([]string{contact.Name})
	if err != nil {
		return "[]"
	}
	return string(bindings)
}

func decodeBindings(serialized string) []string {
	if serialized == "" {
		return nil
	}
	var bindings []string
	if err := json.Unmarshal([]byte(serialized), &bindings); err != nil {
		return nil
	}
	return bindings
}
