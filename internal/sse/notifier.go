package sse

import (
	"time"

	"github.com/GTDGit/schemagate/internal/models"
)

// HubNotifier turns artifact lifecycle changes into hub broadcasts.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyArtifactGenerated(rec *models.ProductRecord, newBalance int) {
	if n.hub.FollowerCount(rec.Shop) == 0 {
		return
	}
	ev := recordToEvent(EventArtifactGenerated, rec)
	ev.NewBalance = &newBalance
	n.hub.Broadcast(ev)
}

func (n *HubNotifier) NotifyArtifactDelivered(rec *models.ProductRecord) {
	if n.hub.FollowerCount(rec.Shop) == 0 {
		return
	}
	n.hub.Broadcast(recordToEvent(EventArtifactDelivered, rec))
}

func recordToEvent(eventType EventType, rec *models.ProductRecord) *ArtifactEvent {
	return &ArtifactEvent{
		Event:       eventType,
		Shop:        rec.Shop,
		ProductID:   rec.ProductID,
		Fingerprint: rec.Fingerprint(),
		Timestamp:   time.Now(),
	}
}
