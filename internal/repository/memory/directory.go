package memory

import (
	"context"
	"sync"

	"github.com/ignite/keylock/internal/domain"
)

// Directory serves campaigns and streamers from memory.
type Directory struct {
	mu        sync.RWMutex
	campaigns map[string]domain.Campaign
	streamers map[string]domain.Streamer
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		campaigns: make(map[string]domain.Campaign),
		streamers: make(map[string]domain.Streamer),
	}
}

// PutCampaign adds or replaces a campaign.
func (d *Directory) PutCampaign(c domain.Campaign) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.campaigns[c.ID] = c
}

// PutStreamer adds or replaces a streamer.
func (d *Directory) PutStreamer(s domain.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamers[s.ID] = s
}

func (d *Directory) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	return &c, nil
}

func (d *Directory) GetStreamer(_ context.Context, id string) (*domain.Streamer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.streamers[id]
	if !ok {
		return nil, domain.ErrStreamerNotFound
	}
	return &s, nil
}
