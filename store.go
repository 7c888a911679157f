package quartz

import (
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// DefaultMisfireThreshold is how late a trigger may be acquired before its
// misfire instruction is applied.
const DefaultMisfireThreshold = 5 * time.Second

// JobStore is the contract between a Scheduler and the storage of jobs,
// triggers and calendars.
type JobStore interface {
	// Initialize installs the signaler of the scheduler driving the store.
	Initialize(signaler SchedulerSignaler)

	StoreJob(job *JobDetail, replace bool) error
	StoreTrigger(trigger OperableTrigger, replace bool) error
	StoreJobAndTrigger(job *JobDetail, trigger OperableTrigger) error
	RemoveJob(key JobKey) bool
	RemoveTrigger(key TriggerKey) bool
	RetrieveJob(key JobKey) *JobDetail
	RetrieveTrigger(key TriggerKey) OperableTrigger
	RetrieveCalendar(name string) Calendar
	PauseJob(key JobKey)
	ResumeJob(key JobKey)

	AcquireNextTriggers(noLaterThan time.Time, maxCount int, timeWindow time.Duration) []OperableTrigger
	ReleaseAcquiredTrigger(trigger OperableTrigger)
	TriggersFired(triggers []OperableTrigger) []*TriggerFiredBundle
	TriggeredJobComplete(trigger OperableTrigger, job *JobDetail, instr CompletedExecutionInstruction)
}

// TriggerFiredBundle carries everything needed to execute one firing.
type TriggerFiredBundle struct {
	Job     *JobDetail
	Trigger OperableTrigger
	// Calendar is the calendar the trigger references, or nil.
	Calendar Calendar
	// FireTime is when the store handed the firing out.
	FireTime time.Time
	// ScheduledFireTime is the fire time the trigger was due at.
	ScheduledFireTime time.Time
	// PreviousFireTime is the trigger's fire time before this one.
	PreviousFireTime time.Time
	// NextFireTime is the trigger's next fire time after this one.
	NextFireTime time.Time
}

// JobWithTriggers pairs a job with the triggers to store along with it.
type JobWithTriggers struct {
	Job      *JobDetail
	Triggers []OperableTrigger
}

type triggerWrapperState int

const (
	stateWaiting triggerWrapperState = iota
	stateAcquired
	stateComplete
	statePaused
	stateBlocked
	statePausedBlocked
	stateError
)

type triggerWrapper struct {
	trigger   OperableTrigger
	state     triggerWrapperState
	heapIndex int
}

func (w *triggerWrapper) key() TriggerKey { return w.trigger.Key() }
func (w *triggerWrapper) jobKey() JobKey  { return w.trigger.JobKey() }

// MemoryStore keeps jobs, triggers and calendars in memory. A single mutex
// guards every index, so all methods are safe for concurrent use. Objects
// are copied on the way in and on the way out.
type MemoryStore struct {
	mu sync.Mutex

	jobs          map[JobKey]*JobDetail
	jobGroups     map[string]map[JobKey]struct{}
	triggers      map[TriggerKey]*triggerWrapper
	triggerGroups map[string]map[TriggerKey]*triggerWrapper
	triggersByJob map[JobKey]map[TriggerKey]*triggerWrapper
	calendars     map[string]Calendar
	waiting       triggerHeap

	pausedTriggerGroups map[string]struct{}
	pausedJobGroups     map[string]struct{}
	blockedJobs         map[JobKey]struct{}

	misfireThreshold time.Duration
	clock            Clock
	logger           Logger
	signaler         SchedulerSignaler
	userSignaler     SchedulerSignaler
	instanceID       string
	fireSeq          uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		misfireThreshold: DefaultMisfireThreshold,
		clock:            RealClock{},
		logger:           DefaultLogger,
		userSignaler:     NoopSignaler{},
		instanceID:       uuid.Must(uuid.NewV7()).String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signaler = s.userSignaler
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.jobs = make(map[JobKey]*JobDetail)
	s.jobGroups = make(map[string]map[JobKey]struct{})
	s.triggers = make(map[TriggerKey]*triggerWrapper)
	s.triggerGroups = make(map[string]map[TriggerKey]*triggerWrapper)
	s.triggersByJob = make(map[JobKey]map[TriggerKey]*triggerWrapper)
	s.calendars = make(map[string]Calendar)
	s.waiting = nil
	s.pausedTriggerGroups = make(map[string]struct{})
	s.pausedJobGroups = make(map[string]struct{})
	s.blockedJobs = make(map[JobKey]struct{})
}

// Initialize adds the signaler of the scheduler driving the store. The
// signaler passed to WithSignaler keeps receiving notifications.
func (s *MemoryStore) Initialize(signaler SchedulerSignaler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signaler = MultiSignaler(s.userSignaler, signaler)
}

// MisfireThreshold returns the configured misfire threshold.
func (s *MemoryStore) MisfireThreshold() time.Duration { return s.misfireThreshold }

// InstanceID returns the prefix of the fire instance ids the store assigns.
func (s *MemoryStore) InstanceID() string { return s.instanceID }

// ClearAllSchedulingData removes every job, trigger and calendar and forgets
// all paused groups and blocked jobs.
func (s *MemoryStore) ClearAllSchedulingData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.logger.Info("cleared all scheduling data")
}

// StoreJob stores a copy of job. Replacing a job keeps its triggers.
func (s *MemoryStore) StoreJob(job *JobDetail, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeJob(job, replace)
}

func (s *MemoryStore) storeJob(job *JobDetail, replace bool) error {
	if job == nil {
		return errors.Wrap(ErrInvalidJob, "job cannot be nil")
	}
	if err := job.Validate(); err != nil {
		return err
	}
	key := job.Key()
	if _, ok := s.jobs[key]; ok && !replace {
		return errors.Wrapf(ErrObjectAlreadyExists, "job %s", key)
	}
	s.jobs[key] = job.Clone()
	group := s.jobGroups[key.Group]
	if group == nil {
		group = make(map[JobKey]struct{})
		s.jobGroups[key.Group] = group
	}
	group[key] = struct{}{}
	return nil
}

// StoreTrigger stores a copy of trigger. The job it references must already
// be stored. A trigger whose next fire time was never computed gets its
// first fire time computed against its calendar.
//
// The stored trigger starts out PAUSED when its group or its job's group is
// paused, BLOCKED when its job is running and disallows concurrent
// execution, and WAITING otherwise.
func (s *MemoryStore) StoreTrigger(trigger OperableTrigger, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeTrigger(trigger, replace)
}

func (s *MemoryStore) storeTrigger(trigger OperableTrigger, replace bool) error {
	t, err := s.prepareTrigger(trigger, nil)
	if err != nil {
		return err
	}
	key := t.Key()
	if _, ok := s.triggers[key]; ok {
		if !replace {
			return errors.Wrapf(ErrObjectAlreadyExists, "trigger %s", key)
		}
		s.removeTrigger(key, false)
	}
	s.insertTrigger(&triggerWrapper{trigger: t, heapIndex: -1})
	return nil
}

// prepareTrigger checks that trigger can be stored and returns the copy to
// store, with its first fire time computed. Jobs in pending count as stored.
// It does not modify the store.
func (s *MemoryStore) prepareTrigger(trigger OperableTrigger, pending map[JobKey]struct{}) (OperableTrigger, error) {
	if trigger == nil {
		return nil, errors.Wrap(ErrInvalidTrigger, "trigger cannot be nil")
	}
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	key, jobKey := trigger.Key(), trigger.JobKey()
	if _, ok := s.jobs[jobKey]; !ok {
		if _, ok := pending[jobKey]; !ok {
			return nil, errors.Wrapf(ErrJobNotFound, "trigger %s references job %s", key, jobKey)
		}
	}
	var cal Calendar
	if name := trigger.CalendarName(); name != "" {
		var ok bool
		if cal, ok = s.calendars[name]; !ok {
			return nil, errors.Wrapf(ErrInvalidCalendar, "trigger %s references unknown calendar %q", key, name)
		}
	}

	t := trigger.Clone()
	if t.NextFireTime().IsZero() && t.TimesTriggered() == 0 {
		t.ComputeFirstFireTime(cal)
	}
	if t.NextFireTime().IsZero() {
		return nil, errors.WithHint(
			errors.Wrapf(ErrInvalidTrigger, "trigger %s will never fire", key),
			"check the start time, end time and calendar of the trigger")
	}
	return t, nil
}

// insertTrigger indexes w and derives its initial state.
func (s *MemoryStore) insertTrigger(w *triggerWrapper) {
	key, jobKey := w.key(), w.jobKey()
	s.triggers[key] = w
	group := s.triggerGroups[key.Group]
	if group == nil {
		group = make(map[TriggerKey]*triggerWrapper)
		s.triggerGroups[key.Group] = group
	}
	group[key] = w
	byJob := s.triggersByJob[jobKey]
	if byJob == nil {
		byJob = make(map[TriggerKey]*triggerWrapper)
		s.triggersByJob[jobKey] = byJob
	}
	byJob[key] = w

	_, triggerGroupPaused := s.pausedTriggerGroups[key.Group]
	_, jobGroupPaused := s.pausedJobGroups[jobKey.Group]
	_, blocked := s.blockedJobs[jobKey]
	switch {
	case (triggerGroupPaused || jobGroupPaused) && blocked:
		w.state = statePausedBlocked
	case triggerGroupPaused || jobGroupPaused:
		w.state = statePaused
	case blocked:
		w.state = stateBlocked
	default:
		w.state = stateWaiting
		s.waiting.add(w)
		s.signaler.SchedulingChanged(w.trigger.NextFireTime())
	}
}

// StoreJobAndTrigger stores job and trigger without replacing either.
// Nothing is stored when either is rejected.
func (s *MemoryStore) StoreJobAndTrigger(job *JobDetail, trigger OperableTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeJobsAndTriggers([]JobWithTriggers{{Job: job, Triggers: []OperableTrigger{trigger}}}, false)
}

// StoreJobsAndTriggers stores several jobs with their triggers. Every entry
// is checked before anything is stored, so a rejected job or trigger leaves
// the store unchanged. Without replace, an already stored job or trigger is
// rejected.
func (s *MemoryStore) StoreJobsAndTriggers(entries []JobWithTriggers, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeJobsAndTriggers(entries, replace)
}

func (s *MemoryStore) storeJobsAndTriggers(entries []JobWithTriggers, replace bool) error {
	pending := make(map[JobKey]struct{}, len(entries))
	for _, e := range entries {
		if e.Job == nil {
			return errors.Wrap(ErrInvalidJob, "job cannot be nil")
		}
		if err := e.Job.Validate(); err != nil {
			return err
		}
		key := e.Job.Key()
		if _, ok := s.jobs[key]; ok && !replace {
			return errors.Wrapf(ErrObjectAlreadyExists, "job %s", key)
		}
		if _, ok := pending[key]; ok && !replace {
			return errors.Wrapf(ErrObjectAlreadyExists, "job %s is listed twice", key)
		}
		pending[key] = struct{}{}
	}

	var prepared []OperableTrigger
	seen := make(map[TriggerKey]struct{})
	for _, e := range entries {
		for _, t := range e.Triggers {
			p, err := s.prepareTrigger(t, pending)
			if err != nil {
				return err
			}
			key := p.Key()
			if !replace {
				if _, ok := s.triggers[key]; ok {
					return errors.Wrapf(ErrObjectAlreadyExists, "trigger %s", key)
				}
				if _, ok := seen[key]; ok {
					return errors.Wrapf(ErrObjectAlreadyExists, "trigger %s is listed twice", key)
				}
			}
			seen[key] = struct{}{}
			prepared = append(prepared, p)
		}
	}

	for _, e := range entries {
		if err := s.storeJob(e.Job, true); err != nil {
			return err
		}
	}
	for _, t := range prepared {
		if _, ok := s.triggers[t.Key()]; ok {
			s.removeTrigger(t.Key(), false)
		}
		s.insertTrigger(&triggerWrapper{trigger: t, heapIndex: -1})
	}
	return nil
}

// RemoveJob removes a job and all of its triggers. It reports whether the
// job existed.
func (s *MemoryStore) RemoveJob(key JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeJob(key)
}

func (s *MemoryStore) removeJob(key JobKey) bool {
	found := false
	for tk := range s.triggersByJob[key] {
		s.removeTrigger(tk, false)
		found = true
	}
	if _, ok := s.jobs[key]; ok {
		delete(s.jobs, key)
		if group := s.jobGroups[key.Group]; group != nil {
			delete(group, key)
			if len(group) == 0 {
				delete(s.jobGroups, key.Group)
			}
		}
		found = true
	}
	delete(s.triggersByJob, key)
	return found
}

// RemoveJobs removes each job. It reports whether all of them existed.
func (s *MemoryStore) RemoveJobs(keys []JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := true
	for _, k := range keys {
		all = s.removeJob(k) && all
	}
	return all
}

// RemoveTrigger removes a trigger. A non-durable job left without triggers
// is removed too. It reports whether the trigger existed.
func (s *MemoryStore) RemoveTrigger(key TriggerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeTrigger(key, true)
}

// RemoveTriggers removes each trigger. It reports whether all of them existed.
func (s *MemoryStore) RemoveTriggers(keys []TriggerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := true
	for _, k := range keys {
		all = s.removeTrigger(k, true) && all
	}
	return all
}

func (s *MemoryStore) removeTrigger(key TriggerKey, removeOrphanedJob bool) bool {
	w, ok := s.triggers[key]
	if !ok {
		return false
	}
	delete(s.triggers, key)
	if group := s.triggerGroups[key.Group]; group != nil {
		delete(group, key)
		if len(group) == 0 {
			delete(s.triggerGroups, key.Group)
		}
	}
	jobKey := w.jobKey()
	if byJob := s.triggersByJob[jobKey]; byJob != nil {
		delete(byJob, key)
		if len(byJob) == 0 {
			delete(s.triggersByJob, jobKey)
		}
	}
	s.waiting.remove(w)

	if removeOrphanedJob {
		if job, ok := s.jobs[jobKey]; ok && !job.IsDurable() && len(s.triggersByJob[jobKey]) == 0 {
			s.removeJob(jobKey)
			s.logger.Info("removed orphaned job", "job", jobKey, "trigger", key)
		}
	}
	return true
}

// ReplaceTrigger removes the trigger stored under key and stores
// newTrigger in its place. newTrigger must fire the same job. If newTrigger
// is rejected, the old trigger stays as it was. It reports whether a
// trigger was stored under key.
func (s *MemoryStore) ReplaceTrigger(key TriggerKey, newTrigger OperableTrigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	if newTrigger == nil {
		return false, errors.Wrap(ErrInvalidTrigger, "trigger cannot be nil")
	}
	if newTrigger.JobKey() != old.jobKey() {
		return false, errors.Wrapf(ErrTriggerJobMismatch, "trigger %s fires %s, not %s", newTrigger.Key(), newTrigger.JobKey(), old.jobKey())
	}
	t, err := s.prepareTrigger(newTrigger, nil)
	if err != nil {
		return false, err
	}
	if _, ok := s.triggers[t.Key()]; ok && t.Key() != key {
		return false, errors.Wrapf(ErrObjectAlreadyExists, "trigger %s", t.Key())
	}

	s.removeTrigger(key, false)
	s.insertTrigger(&triggerWrapper{trigger: t, heapIndex: -1})
	return true, nil
}

// RetrieveJob returns a copy of the job, or nil.
func (s *MemoryStore) RetrieveJob(key JobKey) *JobDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[key]; ok {
		return job.Clone()
	}
	return nil
}

// RetrieveTrigger returns a copy of the trigger, or nil.
func (s *MemoryStore) RetrieveTrigger(key TriggerKey) OperableTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.triggers[key]; ok {
		return w.trigger.Clone()
	}
	return nil
}

// CheckJobExists reports whether a job is stored under key.
func (s *MemoryStore) CheckJobExists(key JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// CheckTriggerExists reports whether a trigger is stored under key.
func (s *MemoryStore) CheckTriggerExists(key TriggerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[key]
	return ok
}

// StoreCalendar stores a copy of cal under name. With updateTriggers, the
// triggers referencing a replaced calendar get their next fire time
// recomputed against the new one.
func (s *MemoryStore) StoreCalendar(name string, cal Calendar, replace, updateTriggers bool) error {
	if cal == nil {
		return errors.Wrap(ErrInvalidCalendar, "calendar cannot be nil")
	}
	if name == "" {
		return errors.Wrap(ErrInvalidCalendar, "calendar name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.calendars[name]
	if exists && !replace {
		return errors.Wrapf(ErrObjectAlreadyExists, "calendar %q", name)
	}
	cal = cal.Clone()
	s.calendars[name] = cal
	if !exists || !updateTriggers {
		return nil
	}

	now := s.clock.Now()
	updated := 0
	for _, w := range s.triggers {
		if w.trigger.CalendarName() != name {
			continue
		}
		queued := s.waiting.remove(w)
		w.trigger.UpdateWithNewCalendar(cal, s.misfireThreshold, now)
		updated++
		if w.trigger.NextFireTime().IsZero() {
			s.finalize(w)
			continue
		}
		if queued {
			s.waiting.add(w)
		}
	}
	s.logger.Info("updated triggers for calendar", "calendar", name, "triggers", updated)
	s.signaler.SchedulingChanged(time.Time{})
	return nil
}

// RemoveCalendar removes the named calendar. It fails with ErrCalendarInUse
// while a trigger references it, and reports whether it existed.
func (s *MemoryStore) RemoveCalendar(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.triggers {
		if w.trigger.CalendarName() == name {
			return false, errors.Wrapf(ErrCalendarInUse, "calendar %q is used by trigger %s", name, key)
		}
	}
	_, ok := s.calendars[name]
	delete(s.calendars, name)
	return ok, nil
}

// RetrieveCalendar returns a copy of the calendar, or nil.
func (s *MemoryStore) RetrieveCalendar(name string) Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cal, ok := s.calendars[name]; ok {
		return cal.Clone()
	}
	return nil
}

// CalendarNames returns the sorted calendar names.
func (s *MemoryStore) CalendarNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.calendars))
}

// NumberOfJobs returns the number of stored jobs.
func (s *MemoryStore) NumberOfJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// NumberOfTriggers returns the number of stored triggers.
func (s *MemoryStore) NumberOfTriggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

// NumberOfCalendars returns the number of stored calendars.
func (s *MemoryStore) NumberOfCalendars() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calendars)
}

// JobKeys returns the sorted keys of the jobs whose group matches.
func (s *MemoryStore) JobKeys(matcher GroupMatcher) []JobKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobKeys(matcher)
}

func (s *MemoryStore) jobKeys(matcher GroupMatcher) []JobKey {
	var out []JobKey
	for group, keys := range s.jobGroups {
		if matcher.MatchesGroup(group) {
			out = slices.AppendSeq(out, maps.Keys(keys))
		}
	}
	slices.SortFunc(out, JobKey.Compare)
	return out
}

// TriggerKeys returns the sorted keys of the triggers whose group matches.
func (s *MemoryStore) TriggerKeys(matcher GroupMatcher) []TriggerKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerKeys(matcher)
}

func (s *MemoryStore) triggerKeys(matcher GroupMatcher) []TriggerKey {
	var out []TriggerKey
	for group, keys := range s.triggerGroups {
		if matcher.MatchesGroup(group) {
			out = slices.AppendSeq(out, maps.Keys(keys))
		}
	}
	slices.SortFunc(out, TriggerKey.Compare)
	return out
}

// JobGroupNames returns the sorted names of the groups holding jobs.
func (s *MemoryStore) JobGroupNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.jobGroups))
}

// TriggerGroupNames returns the sorted names of the groups holding triggers.
func (s *MemoryStore) TriggerGroupNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.triggerGroups))
}

// TriggersForJob returns copies of the job's triggers ordered by key.
func (s *MemoryStore) TriggersForJob(key JobKey) []OperableTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OperableTrigger
	for _, w := range s.wrappersForJob(key) {
		out = append(out, w.trigger.Clone())
	}
	return out
}

func (s *MemoryStore) wrappersForJob(key JobKey) []*triggerWrapper {
	ws := slices.Collect(maps.Values(s.triggersByJob[key]))
	slices.SortFunc(ws, func(a, b *triggerWrapper) int { return a.key().Compare(b.key()) })
	return ws
}

// TriggerState returns the externally visible state of a trigger.
func (s *MemoryStore) TriggerState(key TriggerKey) TriggerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.triggers[key]
	if !ok {
		return TriggerStateNone
	}
	switch w.state {
	case stateComplete:
		return TriggerStateComplete
	case statePaused, statePausedBlocked:
		return TriggerStatePaused
	case stateBlocked:
		return TriggerStateBlocked
	case stateError:
		return TriggerStateError
	default:
		return TriggerStateNormal
	}
}

// ResetTriggerFromErrorState returns an ERROR trigger to WAITING, or to
// PAUSED when its group is paused.
func (s *MemoryStore) ResetTriggerFromErrorState(key TriggerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.triggers[key]
	if !ok || w.state != stateError {
		return
	}
	_, paused := s.pausedTriggerGroups[key.Group]
	_, blocked := s.blockedJobs[w.jobKey()]
	switch {
	case paused && blocked:
		w.state = statePausedBlocked
	case paused:
		w.state = statePaused
	case blocked:
		w.state = stateBlocked
	default:
		w.state = stateWaiting
		s.waiting.add(w)
		s.signaler.SchedulingChanged(w.trigger.NextFireTime())
	}
}

// PauseTrigger pauses a trigger. COMPLETE and ERROR triggers are left as is.
func (s *MemoryStore) PauseTrigger(key TriggerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseTrigger(key)
}

func (s *MemoryStore) pauseTrigger(key TriggerKey) {
	w, ok := s.triggers[key]
	if !ok {
		return
	}
	switch w.state {
	case stateComplete, stateError, statePaused, statePausedBlocked:
		return
	case stateBlocked:
		w.state = statePausedBlocked
	default:
		w.state = statePaused
	}
	s.waiting.remove(w)
}

// PauseTriggers pauses the triggers of every matching group and remembers
// the groups, so triggers stored into them later start out paused. An
// EQUALS matcher pauses its group even if it holds no triggers yet. It
// returns the paused group names.
func (s *MemoryStore) PauseTriggers(matcher GroupMatcher) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseTriggers(matcher)
}

func (s *MemoryStore) pauseTriggers(matcher GroupMatcher) []string {
	var groups []string
	if matcher.Operator == MatchEquals {
		groups = append(groups, matcher.CompareTo)
	} else {
		for group := range s.triggerGroups {
			if matcher.MatchesGroup(group) {
				groups = append(groups, group)
			}
		}
	}
	slices.Sort(groups)
	for _, group := range groups {
		s.pausedTriggerGroups[group] = struct{}{}
		for key := range s.triggerGroups[group] {
			s.pauseTrigger(key)
		}
	}
	return groups
}

// PauseJob pauses every trigger of the job.
func (s *MemoryStore) PauseJob(key JobKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tk := range s.triggersByJob[key] {
		s.pauseTrigger(tk)
	}
}

// PauseJobs pauses the triggers of every job in a matching group and
// remembers the groups. It returns the newly paused group names.
func (s *MemoryStore) PauseJobs(matcher GroupMatcher) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []string
	if matcher.Operator == MatchEquals {
		if _, ok := s.pausedJobGroups[matcher.CompareTo]; !ok {
			groups = append(groups, matcher.CompareTo)
		}
	} else {
		for group := range s.jobGroups {
			if _, ok := s.pausedJobGroups[group]; !ok && matcher.MatchesGroup(group) {
				groups = append(groups, group)
			}
		}
	}
	slices.Sort(groups)
	for _, group := range groups {
		s.pausedJobGroups[group] = struct{}{}
		for _, jobKey := range s.jobKeys(GroupEquals(group)) {
			for tk := range s.triggersByJob[jobKey] {
				s.pauseTrigger(tk)
			}
		}
	}
	return groups
}

// ResumeTrigger resumes a paused trigger. Misfire handling is applied
// before it is queued again, since it may have missed fire times while
// paused.
func (s *MemoryStore) ResumeTrigger(key TriggerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeTrigger(key, s.clock.Now())
}

func (s *MemoryStore) resumeTrigger(key TriggerKey, now time.Time) {
	w, ok := s.triggers[key]
	if !ok || (w.state != statePaused && w.state != statePausedBlocked) {
		return
	}
	if _, blocked := s.blockedJobs[w.jobKey()]; blocked {
		w.state = stateBlocked
	} else {
		w.state = stateWaiting
	}
	s.applyMisfire(w, now)
	if w.state == stateWaiting {
		s.waiting.add(w)
		s.signaler.SchedulingChanged(w.trigger.NextFireTime())
	}
}

// ResumeTriggers resumes the triggers of every matching group, except those
// whose job group is paused, and forgets the matching paused groups. It
// returns the names of the groups resumed.
func (s *MemoryStore) ResumeTriggers(matcher GroupMatcher) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeTriggers(matcher, s.clock.Now())
}

func (s *MemoryStore) resumeTriggers(matcher GroupMatcher, now time.Time) []string {
	groups := make(map[string]struct{})
	for _, key := range s.triggerKeys(matcher) {
		groups[key.Group] = struct{}{}
		if _, paused := s.pausedJobGroups[s.triggers[key].jobKey().Group]; paused {
			continue
		}
		s.resumeTrigger(key, now)
	}
	for group := range s.pausedTriggerGroups {
		if matcher.MatchesGroup(group) {
			delete(s.pausedTriggerGroups, group)
		}
	}
	return slices.Sorted(maps.Keys(groups))
}

// ResumeJob resumes every trigger of the job.
func (s *MemoryStore) ResumeJob(key JobKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for tk := range s.triggersByJob[key] {
		s.resumeTrigger(tk, now)
	}
}

// ResumeJobs forgets the matching paused job groups and resumes the
// triggers of every matching job. It returns the resumed group names.
func (s *MemoryStore) ResumeJobs(matcher GroupMatcher) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []string
	for group := range s.pausedJobGroups {
		if matcher.MatchesGroup(group) {
			groups = append(groups, group)
		}
	}
	for _, group := range groups {
		delete(s.pausedJobGroups, group)
	}
	now := s.clock.Now()
	for _, jobKey := range s.jobKeys(matcher) {
		for tk := range s.triggersByJob[jobKey] {
			s.resumeTrigger(tk, now)
		}
	}
	slices.Sort(groups)
	return groups
}

// PauseAll pauses every trigger group.
func (s *MemoryStore) PauseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for group := range s.triggerGroups {
		s.pauseTriggers(GroupEquals(group))
	}
}

// ResumeAll forgets all paused job groups and resumes every trigger group.
func (s *MemoryStore) ResumeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.pausedJobGroups)
	now := s.clock.Now()
	for _, group := range slices.Sorted(maps.Keys(s.triggerGroups)) {
		s.resumeTriggers(GroupEquals(group), now)
	}
	clear(s.pausedTriggerGroups)
}

// PausedTriggerGroups returns the sorted names of the paused trigger groups.
func (s *MemoryStore) PausedTriggerGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.pausedTriggerGroups))
}

// IsTriggerGroupPaused reports whether the trigger group is paused.
func (s *MemoryStore) IsTriggerGroupPaused(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pausedTriggerGroups[group]
	return ok
}

// IsJobGroupPaused reports whether the job group is paused.
func (s *MemoryStore) IsJobGroupPaused(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pausedJobGroups[group]
	return ok
}

// applyMisfire applies the misfire instruction of w if its next fire time
// is older than now minus the misfire threshold. It reports whether the
// next fire time changed.
func (s *MemoryStore) applyMisfire(w *triggerWrapper, now time.Time) bool {
	misfireTime := now
	if s.misfireThreshold > 0 {
		misfireTime = now.Add(-s.misfireThreshold)
	}
	next := w.trigger.NextFireTime()
	if next.IsZero() || next.After(misfireTime) || w.trigger.MisfireInstruction() == MisfireIgnorePolicy {
		return false
	}

	var cal Calendar
	if name := w.trigger.CalendarName(); name != "" {
		cal = s.calendars[name]
	}
	s.signaler.TriggerMisfired(w.trigger.Clone())
	w.trigger.UpdateAfterMisfire(cal, now)
	s.logger.Info("handled misfire",
		"trigger", w.key(),
		"missed", next,
		"next", w.trigger.NextFireTime())

	switch {
	case w.trigger.NextFireTime().IsZero():
		s.finalize(w)
	case next.Equal(w.trigger.NextFireTime()):
		return false
	}
	return true
}

// finalize marks a trigger with no further fire times COMPLETE.
func (s *MemoryStore) finalize(w *triggerWrapper) {
	w.state = stateComplete
	s.waiting.remove(w)
	s.signaler.TriggerFinalized(w.trigger.Clone())
	s.logger.Info("trigger completed", "trigger", w.key())
}

func (s *MemoryStore) nextFireInstanceID() string {
	s.fireSeq++
	return s.instanceID + "-" + strconv.FormatUint(s.fireSeq, 10)
}

// AcquireNextTriggers reserves up to maxCount WAITING triggers due no
// later than noLaterThan+timeWindow, in fire time order. Misfired triggers
// get their misfire instruction applied on the way. Only one trigger per
// job that disallows concurrent execution is acquired per call. The
// returned triggers are copies carrying a fresh fire instance id.
func (s *MemoryStore) AcquireNextTriggers(noLaterThan time.Time, maxCount int, timeWindow time.Duration) []OperableTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxCount < 1 {
		maxCount = 1
	}
	now := s.clock.Now()
	cutoff := noLaterThan.Add(timeWindow)

	var (
		result   []OperableTrigger
		excluded []*triggerWrapper
		jobs     = make(map[JobKey]struct{})
	)
	for len(result) < maxCount {
		w := s.waiting.popMin()
		if w == nil {
			break
		}
		if w.trigger.NextFireTime().IsZero() {
			s.finalize(w)
			continue
		}
		if s.applyMisfire(w, now) {
			if !w.trigger.NextFireTime().IsZero() {
				s.waiting.add(w)
			}
			continue
		}
		if w.trigger.NextFireTime().After(cutoff) {
			s.waiting.add(w)
			break
		}
		jobKey := w.jobKey()
		if job := s.jobs[jobKey]; job != nil && job.IsConcurrentExecutionDisallowed() {
			if _, ok := jobs[jobKey]; ok {
				excluded = append(excluded, w)
				continue
			}
			jobs[jobKey] = struct{}{}
		}

		w.state = stateAcquired
		w.trigger.SetFireInstanceID(s.nextFireInstanceID())
		result = append(result, w.trigger.Clone())
	}
	for _, w := range excluded {
		s.waiting.add(w)
	}
	return result
}

// ReleaseAcquiredTrigger returns an ACQUIRED trigger to WAITING. It does
// nothing for triggers in any other state.
func (s *MemoryStore) ReleaseAcquiredTrigger(trigger OperableTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.triggers[trigger.Key()]
	if !ok || w.state != stateAcquired {
		return
	}
	w.state = stateWaiting
	s.waiting.add(w)
	s.signaler.SchedulingChanged(w.trigger.NextFireTime())
}

// TriggersFired records the firing of acquired triggers. The result is
// aligned with triggers; an entry is nil when its trigger was removed,
// is no longer ACQUIRED, references a missing calendar, or fires a job that
// disallows concurrent execution and is already running. Both the stored
// trigger and the caller's copy are advanced past the fire time.
//
// When the job disallows concurrent execution, its other triggers are
// BLOCKED until TriggeredJobComplete is called.
func (s *MemoryStore) TriggersFired(triggers []OperableTrigger) []*TriggerFiredBundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	results := make([]*TriggerFiredBundle, len(triggers))
	for i, trigger := range triggers {
		if trigger == nil {
			continue
		}
		w, ok := s.triggers[trigger.Key()]
		if !ok || w.state != stateAcquired {
			continue
		}
		var cal Calendar
		if name := w.trigger.CalendarName(); name != "" {
			if cal, ok = s.calendars[name]; !ok {
				continue
			}
		}
		job := s.jobs[w.jobKey()]
		if job == nil {
			continue
		}
		if _, blocked := s.blockedJobs[job.Key()]; blocked && job.IsConcurrentExecutionDisallowed() {
			w.state = stateBlocked
			continue
		}

		prev := trigger.PreviousFireTime()
		s.waiting.remove(w)
		w.trigger.Triggered(cal)
		trigger.Triggered(cal)
		if w.trigger.NextFireTime().IsZero() {
			s.finalize(w)
		} else {
			w.state = stateWaiting
		}

		results[i] = &TriggerFiredBundle{
			Job:               job.Clone(),
			Trigger:           trigger.Clone(),
			Calendar:          cloneCalendar(cal),
			FireTime:          now,
			ScheduledFireTime: trigger.PreviousFireTime(),
			PreviousFireTime:  prev,
			NextFireTime:      trigger.NextFireTime(),
		}

		if job.IsConcurrentExecutionDisallowed() {
			for _, other := range s.triggersByJob[job.Key()] {
				switch other.state {
				case stateWaiting:
					other.state = stateBlocked
				case statePaused:
					other.state = statePausedBlocked
				}
				s.waiting.remove(other)
			}
			s.blockedJobs[job.Key()] = struct{}{}
		} else if !w.trigger.NextFireTime().IsZero() {
			s.waiting.add(w)
		}
	}
	return results
}

func cloneCalendar(cal Calendar) Calendar {
	if cal == nil {
		return nil
	}
	return cal.Clone()
}

// TriggeredJobComplete applies the outcome of an execution: job data is
// written back for jobs that persist it, a blocked job is unblocked, and
// instr is applied to the fired trigger.
func (s *MemoryStore) TriggeredJobComplete(trigger OperableTrigger, job *JobDetail, instr CompletedExecutionInstruction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobKey := trigger.JobKey()
	if job != nil {
		jobKey = job.Key()
	}
	if stored, ok := s.jobs[jobKey]; ok {
		if job != nil && stored.IsPersistJobDataAfterExecution() {
			data := job.JobDataMap()
			data.ClearDirtyFlag()
			stored = stored.WithJobData(data)
			s.jobs[jobKey] = stored
		}
		if stored.IsConcurrentExecutionDisallowed() {
			delete(s.blockedJobs, jobKey)
			for _, w := range s.triggersByJob[jobKey] {
				switch w.state {
				case stateBlocked:
					if w.trigger.NextFireTime().IsZero() {
						s.finalize(w)
						continue
					}
					w.state = stateWaiting
					s.waiting.add(w)
				case statePausedBlocked:
					w.state = statePaused
				}
			}
			s.signaler.SchedulingChanged(time.Time{})
		}
	} else {
		delete(s.blockedJobs, jobKey)
	}

	w, ok := s.triggers[trigger.Key()]
	if !ok {
		return
	}
	switch instr {
	case InstructionDeleteTrigger:
		// the job may have rescheduled the trigger while it ran
		if trigger.NextFireTime().IsZero() && !w.trigger.NextFireTime().IsZero() {
			return
		}
		s.removeTrigger(trigger.Key(), true)
		s.signaler.SchedulingChanged(time.Time{})
	case InstructionSetTriggerComplete:
		w.state = stateComplete
		s.waiting.remove(w)
		s.signaler.SchedulingChanged(time.Time{})
	case InstructionSetTriggerError:
		s.logger.Info("trigger set to ERROR state", "trigger", trigger.Key())
		w.state = stateError
		s.waiting.remove(w)
		s.signaler.SchedulingChanged(time.Time{})
	case InstructionSetAllJobTriggersError:
		s.logger.Info("all triggers of job set to ERROR state", "job", trigger.JobKey())
		s.setAllTriggersOfJobToState(trigger.JobKey(), stateError)
		s.signaler.SchedulingChanged(time.Time{})
	case InstructionSetAllJobTriggersComplete:
		s.setAllTriggersOfJobToState(trigger.JobKey(), stateComplete)
		s.signaler.SchedulingChanged(time.Time{})
	}
}

func (s *MemoryStore) setAllTriggersOfJobToState(key JobKey, state triggerWrapperState) {
	for _, w := range s.triggersByJob[key] {
		w.state = state
		if state != stateWaiting {
			s.waiting.remove(w)
		}
	}
}

var _ JobStore = (*MemoryStore)(nil)
