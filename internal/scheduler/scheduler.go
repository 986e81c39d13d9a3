package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/core"
)

// submitTimeout bounds how long a job waits for the dispatch loop.
const submitTimeout = 2 * time.Minute

// ScheduleEntry defines the structure for a saved schedule. Command is a wire
// command, "script <name>" for a stored Ducky Script or "macro <file.lua>".
type ScheduleEntry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Schedule is a ScheduleEntry with its runtime ID.
type Schedule struct {
	ID int `json:"id"`
	ScheduleEntry
}

// ScriptLoader loads stored Ducky Scripts.
type ScriptLoader interface {
	LoadScript(name string) (string, error)
}

// MacroRunner starts stored Lua macros.
type MacroRunner interface {
	RunMacro(name string) error
}

// Scheduler manages all cron-related tasks.
type Scheduler struct {
	cron          *cron.Cron
	store         map[cron.EntryID]ScheduleEntry
	requests      core.Submitter
	scripts       ScriptLoader
	macros        MacroRunner
	eventBus      *core.EventBus
	mu            sync.RWMutex
	schedulesFile string
}

// NewScheduler creates and loads a scheduler. scripts, macros and eb may be nil.
func NewScheduler(requests core.Submitter, scripts ScriptLoader, macros MacroRunner, eb *core.EventBus, schedulesFile string) *Scheduler {
	s := &Scheduler{
		cron:          cron.New(),
		store:         make(map[cron.EntryID]ScheduleEntry),
		requests:      requests,
		scripts:       scripts,
		macros:        macros,
		eventBus:      eb,
		schedulesFile: schedulesFile,
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[Scheduler] Cron scheduler started.")
}

// Stop halts the cron job ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] Cron scheduler stopped.")
}

// Add creates a new cron job and returns its ID.
func (s *Scheduler) Add(spec, command string) (int, error) {
	spec, command = strings.TrimSpace(spec), strings.TrimSpace(command)
	if err := s.validate(command); err != nil {
		return 0, err
	}

	s.mu.Lock()
	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("invalid schedule '%s': %w", spec, err)
	}
	s.store[id] = ScheduleEntry{Spec: spec, Command: command}
	s.save()
	s.mu.Unlock()

	log.Printf("[Scheduler] Added schedule (ID %d): %s -> %s", id, spec, command)
	s.publish()
	return int(id), nil
}

// Remove deletes a cron job.
func (s *Scheduler) Remove(id int) bool {
	s.mu.Lock()
	entryID := cron.EntryID(id)
	_, ok := s.store[entryID]
	if ok {
		s.cron.Remove(entryID)
		delete(s.store, entryID)
		s.save()
	}
	s.mu.Unlock()

	if ok {
		log.Printf("[Scheduler] Removed schedule (ID %d)", id)
		s.publish()
	}
	return ok
}

// GetAll returns the current schedules ordered by ID.
func (s *Scheduler) GetAll() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Schedule, 0, len(s.store))
	for id, entry := range s.store {
		list = append(list, Schedule{ID: int(id), ScheduleEntry: entry})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *Scheduler) publish() {
	if s.eventBus != nil {
		s.eventBus.Publish(core.Event{Type: core.ScheduleChangedEvent, Payload: s.GetAll()})
	}
}

// validate rejects commands that could never run.
func (s *Scheduler) validate(command string) error {
	verb, arg, _ := strings.Cut(command, " ")
	switch verb {
	case "script", "macro":
		if strings.TrimSpace(arg) == "" {
			return fmt.Errorf("'%s' needs a name", verb)
		}
		return nil
	}
	if _, err := core.ParseCommand(command); err != nil {
		return fmt.Errorf("invalid scheduled command: %w", err)
	}
	return nil
}

func (s *Scheduler) execute(command string) {
	log.Printf("[Scheduler] Executing scheduled command: %s", command)
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	verb, arg, _ := strings.Cut(command, " ")
	arg = strings.TrimSpace(arg)

	var (
		res core.Result
		err error
	)
	switch verb {
	case "script":
		if s.scripts == nil {
			log.Warnf("[Scheduler] No script store, cannot run '%s'", arg)
			return
		}
		var script string
		if script, err = s.scripts.LoadScript(arg); err == nil {
			res, err = core.SubmitScript(ctx, s.requests, "scheduler", script)
		}
	case "macro":
		if s.macros == nil {
			log.Warnf("[Scheduler] No macro engine, cannot run '%s'", arg)
			return
		}
		err = s.macros.RunMacro(arg)
		res.Executed = err == nil
	default:
		res, err = core.SubmitLine(ctx, s.requests, "scheduler", command)
	}

	if err != nil {
		log.Printf("[Scheduler] Scheduled command '%s' failed: %v", command, err)
		return
	}
	log.Debugf("[Scheduler] '%s' done: %+v", command, res)
}

func (s *Scheduler) save() {
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		log.Printf("[Scheduler] Error marshalling schedules: %v", err)
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0644); err != nil {
		log.Printf("[Scheduler] Error writing schedule file: %v", err)
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.schedulesFile); os.IsNotExist(err) {
		return
	}
	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		log.Printf("[Scheduler] Error reading schedule file: %v", err)
		return
	}

	tempStore := make(map[cron.EntryID]ScheduleEntry)
	if err := json.Unmarshal(data, &tempStore); err != nil {
		log.Printf("[Scheduler] Error unmarshalling schedule file: %v", err)
		return
	}

	ids := make([]cron.EntryID, 0, len(tempStore))
	for id := range tempStore {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	log.Printf("[Scheduler] Loading %d schedules from file '%s'...", len(tempStore), s.schedulesFile)
	for _, old := range ids {
		jobEntry := tempStore[old]
		newID, err := s.cron.AddFunc(jobEntry.Spec, func() { s.execute(jobEntry.Command) })
		if err != nil {
			log.Printf("[Scheduler] Error re-adding schedule from file: %v", err)
			continue
		}
		s.store[newID] = jobEntry
	}
}
