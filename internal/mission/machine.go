package mission

import (
	"fmt"
	"maps"
	"strings"
)

// Progress is the persisted form of a participant's state. Scenario statuses
// are not stored; they are derived from Scores on Restore.
type Progress struct {
	CharacterID    string            `json:"selectedCharacter,omitempty"`
	Started        bool              `json:"started"`
	Responses      map[string]string `json:"missionResponses"`
	Scores         map[string]int    `json:"missionScores"`
	Screen         Screen            `json:"currentScreen"`
	ActiveScenario string            `json:"currentMission,omitempty"`
}

// State is a read-only view of a Machine, suitable for rendering.
type State struct {
	Screen         Screen            `json:"currentScreen"`
	Character      *Character        `json:"selectedCharacter"`
	Scenarios      []Scenario        `json:"missions"`
	ActiveScenario *Scenario         `json:"currentMission"`
	Responses      map[string]string `json:"missionResponses"`
	Scores         map[string]int    `json:"missionScores"`
	CompletedCount int               `json:"completedMissions"`
	TotalScore     int               `json:"totalScore"`
}

// Machine is the progression state machine. All mutations go through Apply,
// and a rejected command leaves the machine untouched.
//
// A Machine is not safe for concurrent use.
type Machine struct {
	catalog   *Catalog
	statuses  []Status
	character *Character
	started   bool
	responses map[string]string
	scores    map[string]int
	screen    Screen
	active    int // index into catalog.Scenarios, -1 when none
}

// New returns a machine in its initial state: first scenario available, the
// rest locked, no character, start screen.
func New(c *Catalog) *Machine {
	m := &Machine{catalog: c}
	m.reset()
	return m
}

func (m *Machine) reset() {
	m.statuses = make([]Status, len(m.catalog.Scenarios))
	for i := range m.statuses {
		m.statuses[i] = StatusLocked
	}
	m.statuses[0] = StatusAvailable
	m.character = nil
	m.started = false
	m.responses = make(map[string]string)
	m.scores = make(map[string]int)
	m.screen = ScreenStart
	m.active = -1
}

// Restore rebuilds a machine from a snapshot. Statuses are re-derived from
// the recorded scores, which must cover a contiguous prefix of the sequence.
func Restore(c *Catalog, p Progress) (*Machine, error) {
	m := New(c)

	if p.CharacterID != "" {
		ch, ok := c.Character(p.CharacterID)
		if !ok {
			return nil, fmt.Errorf("%w: character %q", ErrCorruptProgress, p.CharacterID)
		}
		m.character = &ch
	}
	if p.Screen != "" {
		if !p.Screen.valid() {
			return nil, fmt.Errorf("%w: screen %q", ErrCorruptProgress, p.Screen)
		}
		m.screen = p.Screen
	}
	m.started = p.Started

	for id := range p.Scores {
		if _, ok := c.Index(id); !ok {
			return nil, fmt.Errorf("%w: score for unknown scenario %q", ErrCorruptProgress, id)
		}
	}
	completed := 0
	for i, s := range c.Scenarios {
		if _, ok := p.Scores[s.ID]; !ok {
			break
		}
		m.statuses[i] = StatusCompleted
		completed++
	}
	if completed != len(p.Scores) {
		return nil, fmt.Errorf("%w: completed scenarios are not a prefix", ErrCorruptProgress)
	}
	if completed < len(c.Scenarios) {
		m.statuses[completed] = StatusAvailable
	}

	for id, text := range p.Responses {
		if _, ok := c.Index(id); ok {
			m.responses[id] = text
		}
	}
	maps.Copy(m.scores, p.Scores)

	if p.ActiveScenario != "" {
		i, ok := c.Index(p.ActiveScenario)
		if !ok || m.statuses[i] == StatusLocked {
			return nil, fmt.Errorf("%w: active scenario %q", ErrCorruptProgress, p.ActiveScenario)
		}
		m.active = i
	}
	return m, nil
}

// Snapshot returns the persistable form of the current state.
func (m *Machine) Snapshot() Progress {
	p := Progress{
		Started:   m.started,
		Responses: maps.Clone(m.responses),
		Scores:    maps.Clone(m.scores),
		Screen:    m.screen,
	}
	if m.character != nil {
		p.CharacterID = m.character.ID
	}
	if m.active >= 0 {
		p.ActiveScenario = m.catalog.Scenarios[m.active].ID
	}
	return p
}

func (m *Machine) State() State {
	s := State{
		Screen:         m.screen,
		Scenarios:      m.Scenarios(),
		Responses:      maps.Clone(m.responses),
		Scores:         maps.Clone(m.scores),
		CompletedCount: m.CompletedCount(),
		TotalScore:     m.TotalScore(),
	}
	if m.character != nil {
		ch := *m.character
		s.Character = &ch
	}
	if m.active >= 0 {
		sc := s.Scenarios[m.active]
		s.ActiveScenario = &sc
	}
	return s
}

// Scenarios returns the sequence with current statuses filled in.
func (m *Machine) Scenarios() []Scenario {
	out := make([]Scenario, len(m.catalog.Scenarios))
	for i, s := range m.catalog.Scenarios {
		s.Status = m.statuses[i]
		out[i] = s
	}
	return out
}

// Scenario returns one scenario with its current status.
func (m *Machine) Scenario(id string) (Scenario, bool) {
	i, ok := m.catalog.Index(id)
	if !ok {
		return Scenario{}, false
	}
	s := m.catalog.Scenarios[i]
	s.Status = m.statuses[i]
	return s, true
}

func (m *Machine) Screen() Screen { return m.screen }

func (m *Machine) Character() (Character, bool) {
	if m.character == nil {
		return Character{}, false
	}
	return *m.character, true
}

func (m *Machine) Response(id string) string { return m.responses[id] }

func (m *Machine) CompletedCount() int {
	n := 0
	for _, st := range m.statuses {
		if st == StatusCompleted {
			n++
		}
	}
	return n
}

func (m *Machine) TotalScore() int {
	total := 0
	for _, v := range m.scores {
		total += v
	}
	return total
}

// Apply executes cmd against the machine.
func (m *Machine) Apply(cmd Command) error {
	return cmd.apply(m)
}

// Command is a participant intent. Implementations validate fully before
// mutating so that a returned error implies no state change.
type Command interface {
	apply(m *Machine) error
}

type SelectCharacter struct{ CharacterID string }

// The character may change freely until the participant first reaches the
// mission map.
func (c SelectCharacter) apply(m *Machine) error {
	ch, ok := m.catalog.Character(c.CharacterID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCharacter, c.CharacterID)
	}
	if m.started {
		if m.character != nil && m.character.ID == ch.ID {
			return nil
		}
		return ErrCharacterLocked
	}
	m.character = &ch
	return nil
}

type OpenCharacterSelect struct{}

func (OpenCharacterSelect) apply(m *Machine) error {
	if m.screen != ScreenStart {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.screen, ScreenCharacterSelect)
	}
	m.screen = ScreenCharacterSelect
	return nil
}

type BeginPlay struct{}

func (BeginPlay) apply(m *Machine) error {
	if m.character == nil {
		return ErrNoCharacterSelected
	}
	switch m.screen {
	case ScreenStart, ScreenCharacterSelect:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.screen, ScreenAdventureIntro)
	}
	m.screen = ScreenAdventureIntro
	return nil
}

type BackToCharacterSelect struct{}

func (BackToCharacterSelect) apply(m *Machine) error {
	if m.screen != ScreenAdventureIntro || m.started {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.screen, ScreenCharacterSelect)
	}
	m.screen = ScreenCharacterSelect
	return nil
}

// EnterMap moves to the mission map and marks play as begun. Leaving a
// scenario this way clears the active scenario; its draft is kept.
type EnterMap struct{}

func (EnterMap) apply(m *Machine) error {
	if m.character == nil {
		return ErrNoCharacterSelected
	}
	switch m.screen {
	case ScreenAdventureIntro, ScreenMission, ScreenHelp, ScreenMissionMap:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.screen, ScreenMissionMap)
	}
	m.screen = ScreenMissionMap
	m.started = true
	m.active = -1
	return nil
}

type ShowHelp struct{}

func (ShowHelp) apply(m *Machine) error {
	switch m.screen {
	case ScreenMissionMap, ScreenMission:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.screen, ScreenHelp)
	}
	m.screen = ScreenHelp
	return nil
}

// HideHelp returns to the scenario that was open, or to the map.
type HideHelp struct{}

func (HideHelp) apply(m *Machine) error {
	if m.screen != ScreenHelp {
		return fmt.Errorf("%w: leaving help from %s", ErrInvalidTransition, m.screen)
	}
	if m.active >= 0 {
		m.screen = ScreenMission
	} else {
		m.screen = ScreenMissionMap
	}
	return nil
}

// SelectScenario opens a scenario from any screen once play has started.
type SelectScenario struct{ ID string }

func (c SelectScenario) apply(m *Machine) error {
	i, ok := m.catalog.Index(c.ID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, c.ID)
	}
	if m.statuses[i] == StatusLocked {
		return ErrScenarioLocked
	}
	if !m.started {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.screen, ScreenMission)
	}
	m.active = i
	m.screen = ScreenMission
	return nil
}

// SaveDraft records in-progress text for a scenario. It never changes
// status or screen.
type SaveDraft struct {
	ID   string
	Text string
}

func (c SaveDraft) apply(m *Machine) error {
	if _, ok := m.catalog.Index(c.ID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, c.ID)
	}
	m.responses[c.ID] = c.Text
	return nil
}

// CompleteScenario marks a scenario completed, unlocks its successor and
// records the score (0 when nil). Completing the last scenario ends the game.
type CompleteScenario struct {
	ID       string
	Response string
	Score    *int
}

func (c CompleteScenario) apply(m *Machine) error {
	if strings.TrimSpace(c.Response) == "" {
		return ErrEmptyResponse
	}
	i, ok := m.catalog.Index(c.ID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, c.ID)
	}
	switch m.statuses[i] {
	case StatusLocked:
		return ErrScenarioLocked
	case StatusCompleted:
		return ErrScenarioCompleted
	}

	score := 0
	if c.Score != nil {
		score = *c.Score
	}
	m.statuses[i] = StatusCompleted
	if i+1 < len(m.statuses) && m.statuses[i+1] == StatusLocked {
		m.statuses[i+1] = StatusAvailable
	}
	m.responses[c.ID] = c.Response
	m.scores[c.ID] = score
	m.active = -1
	if m.CompletedCount() == len(m.statuses) {
		m.screen = ScreenEnd
	} else {
		m.screen = ScreenMissionMap
	}
	return nil
}

// Reset returns the machine to its initial state.
type Reset struct{}

func (Reset) apply(m *Machine) error {
	m.reset()
	return nil
}
