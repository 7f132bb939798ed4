package engine_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smartaqua.dev/smartaqua/internal/engine"
)

type recordingArchiver struct {
	mu       sync.Mutex
	saved    []engine.Alert
	resolved []string
	failSave bool
}

func (a *recordingArchiver) SaveAlert(alert engine.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failSave {
		return errors.New("archive unavailable")
	}
	a.saved = append(a.saved, alert)
	return nil
}

func (a *recordingArchiver) MarkAlertResolved(deviceID, alertID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolved = append(a.resolved, alertID)
	return nil
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []engine.Notification
}

func (n *recordingNotifier) Notify(note engine.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, note)
}

func (n *recordingNotifier) all() []engine.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]engine.Notification(nil), n.notifications...)
}

var _ = Describe("AlertManager", func() {
	var (
		manager  *engine.AlertManager
		archiver *recordingArchiver
		notifier *recordingNotifier
		now      time.Time
	)

	BeforeEach(func() {
		now = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
		archiver = &recordingArchiver{}
		notifier = &recordingNotifier{}
		manager = engine.NewAlertManager(engine.AlertManagerConfig{
			Cooldown: 30 * time.Minute,
			Archiver: archiver,
			Notifier: notifier,
			Now:      func() time.Time { return now },
		})
	})

	Describe("Raise", func() {
		It("assigns an id and timestamp when missing", func() {
			stored := manager.Raise(engine.Alert{
				DeviceID: "tank-a",
				Type:     engine.AlertLowWater,
				Severity: engine.SeverityHigh,
				Message:  "CRITICAL: Tank only 15.0% full!",
			})
			Expect(stored.ID).NotTo(BeEmpty())
			Expect(stored.Timestamp).To(Equal(now))
			Expect(stored.Resolved).To(BeFalse())
		})

		It("keeps a caller-supplied id and timestamp", func() {
			ts := now.Add(-time.Hour)
			stored := manager.Raise(engine.Alert{
				ID:        "alert-1",
				DeviceID:  "tank-a",
				Type:      engine.AlertLeak,
				Timestamp: ts,
			})
			Expect(stored.ID).To(Equal("alert-1"))
			Expect(stored.Timestamp).To(Equal(ts))
		})

		It("archives and notifies for every raised alert", func() {
			manager.Raise(engine.Alert{
				DeviceID: "tank-a",
				Type:     engine.AlertPumpFault,
				Severity: engine.SeverityHigh,
				Message:  "PUMP FAULT: Pump running but no flow detected",
			})
			Expect(archiver.saved).To(HaveLen(1))

			notes := notifier.all()
			Expect(notes).To(HaveLen(1))
			Expect(notes[0].DeviceID).To(Equal("tank-a"))
			Expect(notes[0].AlertType).To(Equal(engine.AlertPumpFault))
			Expect(notes[0].Severity).To(Equal(engine.SeverityHigh))
		})

		It("records the alert even when archiving fails", func() {
			archiver.failSave = true
			manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLeak})
			Expect(manager.List("tank-a", nil, 0)).To(HaveLen(1))
		})
	})

	Describe("InCooldown", func() {
		It("suppresses repeats of the same type within the window", func() {
			manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLowWater})
			Expect(manager.InCooldown("tank-a", engine.AlertLowWater)).To(BeTrue())
			Expect(manager.InCooldown("tank-a", engine.AlertLeak)).To(BeFalse())
			Expect(manager.InCooldown("tank-b", engine.AlertLowWater)).To(BeFalse())
		})

		It("expires once the window passes", func() {
			manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLowWater})
			now = now.Add(31 * time.Minute)
			Expect(manager.InCooldown("tank-a", engine.AlertLowWater)).To(BeFalse())
		})

		It("never suppresses when the cooldown is disabled", func() {
			manager = engine.NewAlertManager(engine.AlertManagerConfig{
				Now: func() time.Time { return now },
			})
			manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLowWater})
			Expect(manager.InCooldown("tank-a", engine.AlertLowWater)).To(BeFalse())
		})
	})

	Describe("Resolve", func() {
		It("marks an alert resolved and archives the transition", func() {
			stored := manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLeak})
			Expect(manager.Resolve("tank-a", stored.ID)).To(Succeed())

			resolved := true
			list := manager.List("tank-a", &resolved, 0)
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).To(Equal(stored.ID))
			Expect(archiver.resolved).To(Equal([]string{stored.ID}))
		})

		It("is a no-op for an already-resolved alert", func() {
			stored := manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLeak})
			Expect(manager.Resolve("tank-a", stored.ID)).To(Succeed())
			Expect(manager.Resolve("tank-a", stored.ID)).To(Succeed())
			Expect(archiver.resolved).To(HaveLen(1))
		})

		It("returns ErrNotFound for an unknown alert id", func() {
			err := manager.Resolve("tank-a", "no-such-alert")
			Expect(err).To(MatchError(engine.ErrNotFound))
		})

		It("does not resolve across devices", func() {
			stored := manager.Raise(engine.Alert{DeviceID: "tank-a", Type: engine.AlertLeak})
			Expect(manager.Resolve("tank-b", stored.ID)).To(MatchError(engine.ErrNotFound))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			for i := range 3 {
				now = now.Add(time.Minute)
				manager.Raise(engine.Alert{
					ID:       []string{"first", "second", "third"}[i],
					DeviceID: "tank-a",
					Type:     engine.AlertOther,
				})
			}
			Expect(manager.Resolve("tank-a", "second")).To(Succeed())
		})

		It("returns alerts newest first", func() {
			list := manager.List("tank-a", nil, 0)
			Expect(list).To(HaveLen(3))
			Expect(list[0].ID).To(Equal("third"))
			Expect(list[2].ID).To(Equal("first"))
		})

		It("filters by resolved state", func() {
			unresolved := false
			list := manager.List("tank-a", &unresolved, 0)
			Expect(list).To(HaveLen(2))
			for _, a := range list {
				Expect(a.Resolved).To(BeFalse())
			}
		})

		It("caps the result at the limit", func() {
			list := manager.List("tank-a", nil, 2)
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal("third"))
		})
	})

	Describe("Preload", func() {
		It("seeds alerts without triggering side effects or cooldowns", func() {
			manager.Preload([]engine.Alert{
				{ID: "old-2", DeviceID: "tank-a", Type: engine.AlertLeak, Timestamp: now.Add(-time.Hour)},
				{ID: "old-1", DeviceID: "tank-a", Type: engine.AlertLeak, Timestamp: now.Add(-2 * time.Hour)},
			})

			list := manager.List("tank-a", nil, 0)
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal("old-2"))

			Expect(archiver.saved).To(BeEmpty())
			Expect(notifier.all()).To(BeEmpty())
			Expect(manager.InCooldown("tank-a", engine.AlertLeak)).To(BeFalse())
		})
	})
})
