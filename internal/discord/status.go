package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"

	"github.com/warblehq/warble/internal/logging"
)

// StatusRotator cycles the bot's presence through the configured status
// messages on a fixed schedule.
type StatusRotator struct {
	session  *discordgo.Session
	cron     *cron.Cron
	statuses []string
	seconds  int

	mu  sync.Mutex
	idx int
}

// NewStatusRotator creates a rotator. It does nothing until Start.
func NewStatusRotator(session *discordgo.Session, statuses []string, seconds int) *StatusRotator {
	if seconds <= 0 {
		seconds = 300
	}
	return &StatusRotator{
		session:  session,
		cron:     cron.New(),
		statuses: statuses,
		seconds:  seconds,
	}
}

// Start sets the first status and begins rotating. With one or zero
// statuses there is nothing to rotate, so no schedule is installed.
func (r *StatusRotator) Start() {
	if len(r.statuses) == 0 {
		return
	}
	r.rotate()
	if len(r.statuses) == 1 {
		return
	}
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %ds", r.seconds), r.rotate); err != nil {
		logging.Errorf("[discord] scheduling status rotation failed: %v", err)
		return
	}
	r.cron.Start()
}

// Stop halts the rotation schedule.
func (r *StatusRotator) Stop() {
	r.cron.Stop()
}

func (r *StatusRotator) rotate() {
	r.mu.Lock()
	status := r.statuses[r.idx%len(r.statuses)]
	r.idx++
	r.mu.Unlock()

	if err := r.session.UpdateGameStatus(0, status); err != nil {
		logging.Warnf("[discord] updating status failed: %v", err)
	}
}
