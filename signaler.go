package quartz

import "time"

// SchedulerSignaler receives one-way notifications from a JobStore. The
// store calls it while holding its lock, so implementations must not block
// and must not call back into the store.
type SchedulerSignaler interface {
	// TriggerMisfired is called after misfire handling was applied to a
	// trigger.
	TriggerMisfired(trigger Trigger)
	// TriggerFinalized is called when a trigger has no further fire times.
	TriggerFinalized(trigger Trigger)
	// SchedulingChanged asks the driving loop to re-evaluate its wake time.
	// candidate is the earliest new fire time known, or the zero time.
	SchedulingChanged(candidate time.Time)
}

// NoopSignaler discards all notifications.
type NoopSignaler struct{}

func (NoopSignaler) TriggerMisfired(Trigger)     {}
func (NoopSignaler) TriggerFinalized(Trigger)    {}
func (NoopSignaler) SchedulingChanged(time.Time) {}

// SignalerHooks adapts plain callbacks to SchedulerSignaler.
// All callbacks are optional; nil callbacks are safely ignored.
//
// Example:
//
//	store := quartz.NewMemoryStore(quartz.WithSignaler(&quartz.SignalerHooks{
//	    OnMisfired: func(t quartz.Trigger) {
//	        misfires.WithLabelValues(t.Key().Group).Inc()
//	    },
//	}))
type SignalerHooks struct {
	OnMisfired         func(trigger Trigger)
	OnFinalized        func(trigger Trigger)
	OnSchedulingChange func(candidate time.Time)
}

func (h *SignalerHooks) TriggerMisfired(trigger Trigger) {
	if h != nil && h.OnMisfired != nil {
		h.OnMisfired(trigger)
	}
}

func (h *SignalerHooks) TriggerFinalized(trigger Trigger) {
	if h != nil && h.OnFinalized != nil {
		h.OnFinalized(trigger)
	}
}

func (h *SignalerHooks) SchedulingChanged(candidate time.Time) {
	if h != nil && h.OnSchedulingChange != nil {
		h.OnSchedulingChange(candidate)
	}
}

// multiSignaler fans notifications out to several signalers in order.
type multiSignaler []SchedulerSignaler

// MultiSignaler returns a signaler forwarding to each non-nil signaler.
func MultiSignaler(signalers ...SchedulerSignaler) SchedulerSignaler {
	var m multiSignaler
	for _, s := range signalers {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multiSignaler) TriggerMisfired(trigger Trigger) {
	for _, s := range m {
		s.TriggerMisfired(trigger)
	}
}

func (m multiSignaler) TriggerFinalized(trigger Trigger) {
	for _, s := range m {
		s.TriggerFinalized(trigger)
	}
}

func (m multiSignaler) SchedulingChanged(candidate time.Time) {
	for _, s := range m {
		s.SchedulingChanged(candidate)
	}
}
