// Package mission holds the scenario catalog and the progression state
// machine. It performs no I/O; persistence goes through Progress snapshots.
package mission

import "errors"

type Status string

const (
	StatusLocked    Status = "locked"
	StatusAvailable Status = "available"
	StatusCompleted Status = "completed"
)

type Screen string

const (
	ScreenStart           Screen = "start"
	ScreenCharacterSelect Screen = "characterSelect"
	ScreenAdventureIntro  Screen = "adventureIntro"
	ScreenMissionMap      Screen = "missionMap"
	ScreenMission         Screen = "mission"
	ScreenHelp            Screen = "help"
	ScreenEnd             Screen = "end"
)

func (s Screen) valid() bool {
	switch s {
	case ScreenStart, ScreenCharacterSelect, ScreenAdventureIntro,
		ScreenMissionMap, ScreenMission, ScreenHelp, ScreenEnd:
		return true
	}
	return false
}

// Scenario is one mission. Content fields are reference data; Status is
// owned by the Machine.
type Scenario struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Zone        string `yaml:"zone" json:"zone"`
	Description string `yaml:"description" json:"description"`
	Instruction string `yaml:"instruction" json:"instruction"`
	Context     string `yaml:"context,omitempty" json:"context,omitempty"`
	Status      Status `yaml:"-" json:"status"`
}

// Prompt is the text sent to the evaluator for this scenario.
func (s Scenario) Prompt() string {
	return s.Description + "\n\n" + s.Instruction
}

type Character struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	SpecialSkill string `yaml:"special_skill" json:"specialSkill"`
}

var (
	ErrScenarioLocked      = errors.New("scenario is locked")
	ErrNoCharacterSelected = errors.New("no character selected")
	ErrEmptyResponse       = errors.New("response is empty")
	ErrUnknownScenario     = errors.New("unknown scenario")
	ErrUnknownCharacter    = errors.New("unknown character")
	ErrScenarioCompleted   = errors.New("scenario already completed")
	ErrCharacterLocked     = errors.New("character cannot change after play began")
	ErrInvalidTransition   = errors.New("screen transition not allowed")
	ErrCorruptProgress     = errors.New("progress snapshot is inconsistent")
)
