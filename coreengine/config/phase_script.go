package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// ToolUnlock adds a tool to a phase's allowed set once an objective reaches a status.
type ToolUnlock struct {
	Tool          string `yaml:"tool" json:"tool"`
	WhenObjective string `yaml:"when_objective" json:"when_objective"`
	// Status defaults to completed. Skipped never unlocks a tool.
	Status interview.ObjectiveStatus `yaml:"status,omitempty" json:"status,omitempty"`
}

// RequiredStatus returns the status the rule waits for.
func (u ToolUnlock) RequiredStatus() interview.ObjectiveStatus {
	if u.Status == "" {
		return interview.ObjectiveCompleted
	}
	return u.Status
}

// PhaseDefinition declares what one phase registers and exposes.
type PhaseDefinition struct {
	Phase       interview.Phase                 `yaml:"phase" json:"phase"`
	Description string                          `yaml:"description,omitempty" json:"description,omitempty"`
	Objectives  []interview.ObjectiveDefinition `yaml:"objectives" json:"objectives"`
	Tools       []string                        `yaml:"tools" json:"tools"`
	Unlocks     []ToolUnlock                    `yaml:"unlocks,omitempty" json:"unlocks,omitempty"`
}

// RequiredObjectives returns the ids that gate leaving the phase.
func (d *PhaseDefinition) RequiredObjectives() []string {
	result := make([]string, 0, len(d.Objectives))
	for _, o := range d.Objectives {
		if o.Required {
			result = append(result, o.ID)
		}
	}
	return result
}

// PhaseScript is the ordered list of phase definitions.
type PhaseScript struct {
	Phases []*PhaseDefinition `yaml:"phases" json:"phases"`

	// Computed during validation
	byPhase          map[interview.Phase]*PhaseDefinition
	objectivePhase   map[string]interview.Phase
	topologicalOrder []string
}

// Validate checks the script and indexes it.
//
// Rules:
//   - every known phase appears exactly once, in canonical order
//   - objective ids are unique across the script
//   - dependencies reference objectives of the same or an earlier phase
//   - the dependency graph is acyclic
//   - unlock rules reference objectives of their own phase
func (s *PhaseScript) Validate() error {
	all := interview.AllPhases()
	if len(s.Phases) != len(all) {
		return fmt.Errorf("phase script must define %d phases, got %d", len(all), len(s.Phases))
	}

	s.byPhase = make(map[interview.Phase]*PhaseDefinition, len(s.Phases))
	s.objectivePhase = make(map[string]interview.Phase)

	for i, def := range s.Phases {
		if def == nil {
			return fmt.Errorf("phase %d is empty", i)
		}
		if def.Phase != all[i] {
			return fmt.Errorf("phase %d must be %s, got %q", i, all[i], def.Phase)
		}
		s.byPhase[def.Phase] = def

		for _, obj := range def.Objectives {
			if obj.ID == "" {
				return fmt.Errorf("phase %s has an objective without id", def.Phase)
			}
			if _, dup := s.objectivePhase[obj.ID]; dup {
				return fmt.Errorf("duplicate objective id: %s", obj.ID)
			}
			s.objectivePhase[obj.ID] = def.Phase
		}

		seenTools := make(map[string]bool, len(def.Tools))
		for _, tool := range def.Tools {
			if tool == "" {
				return fmt.Errorf("phase %s lists an empty tool name", def.Phase)
			}
			seenTools[tool] = true
		}
		for _, unlock := range def.Unlocks {
			if unlock.Tool == "" {
				return fmt.Errorf("phase %s has an unlock without tool", def.Phase)
			}
			if !unlock.RequiredStatus().IsValid() || unlock.RequiredStatus() == interview.ObjectiveSkipped {
				return fmt.Errorf("unlock %s in phase %s has invalid status %q", unlock.Tool, def.Phase, unlock.Status)
			}
			if seenTools[unlock.Tool] {
				return fmt.Errorf("tool %s is both base and unlocked in phase %s", unlock.Tool, def.Phase)
			}
		}
	}

	for _, def := range s.Phases {
		for _, unlock := range def.Unlocks {
			if s.objectivePhase[unlock.WhenObjective] != def.Phase {
				return fmt.Errorf("unlock %s in phase %s waits on objective %q outside the phase",
					unlock.Tool, def.Phase, unlock.WhenObjective)
			}
		}
		for _, obj := range def.Objectives {
			for _, dep := range obj.DependsOn {
				depPhase, ok := s.objectivePhase[dep]
				if !ok {
					return fmt.Errorf("objective '%s' depends on unknown objective '%s'", obj.ID, dep)
				}
				if dep == obj.ID {
					return fmt.Errorf("objective '%s' cannot depend on itself", obj.ID)
				}
				if def.Phase.Before(depPhase) {
					return fmt.Errorf("objective '%s' depends on later objective '%s'", obj.ID, dep)
				}
			}
		}
	}

	return s.validateDAG()
}

// validateDAG computes a topological order of objectives and detects cycles.
func (s *PhaseScript) validateDAG() error {
	adjacency := make(map[string][]string)
	inDegree := make(map[string]int)
	var ids []string

	for _, def := range s.Phases {
		for _, obj := range def.Objectives {
			ids = append(ids, obj.ID)
			if _, ok := inDegree[obj.ID]; !ok {
				inDegree[obj.ID] = 0
			}
			for _, dep := range obj.DependsOn {
				adjacency[dep] = append(adjacency[dep], obj.ID)
				inDegree[obj.ID]++
			}
		}
	}

	// Kahn's algorithm, seeded in script order for a stable result
	queue := make([]string, 0)
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	s.topologicalOrder = make([]string, 0, len(ids))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		s.topologicalOrder = append(s.topologicalOrder, current)

		for _, dependent := range adjacency[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(s.topologicalOrder) != len(ids) {
		cycleNodes := []string{}
		for id, degree := range inDegree {
			if degree > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		return fmt.Errorf("dependency cycle detected involving objectives: %v", cycleNodes)
	}
	return nil
}

// Phase returns the definition for p, or nil.
func (s *PhaseScript) Phase(p interview.Phase) *PhaseDefinition {
	if s.byPhase == nil {
		for _, def := range s.Phases {
			if def != nil && def.Phase == p {
				return def
			}
		}
		return nil
	}
	return s.byPhase[p]
}

// ObjectivePhase returns the phase that registers an objective.
func (s *PhaseScript) ObjectivePhase(id string) (interview.Phase, bool) {
	p, ok := s.objectivePhase[id]
	return p, ok
}

// TopologicalOrder returns objectives ordered so dependencies come first.
// Empty until Validate has run.
func (s *PhaseScript) TopologicalOrder() []string {
	return s.topologicalOrder
}

// ToYAML renders the script.
func (s *PhaseScript) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// PhaseScriptFromYAML parses and validates a script from raw YAML bytes.
func PhaseScriptFromYAML(data []byte) (*PhaseScript, error) {
	var script PhaseScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("invalid phase script yaml: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

// LoadPhaseScript reads a script file. An empty path returns the default script.
func LoadPhaseScript(path string) (*PhaseScript, error) {
	if path == "" {
		return DefaultPhaseScript(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phase script: %w", err)
	}
	return PhaseScriptFromYAML(data)
}

// DefaultPhaseScript returns the built-in resume interview script.
func DefaultPhaseScript() *PhaseScript {
	script, err := PhaseScriptFromYAML([]byte(defaultPhaseScript))
	if err != nil {
		panic(fmt.Sprintf("built-in phase script is invalid: %v", err))
	}
	return script
}

const defaultPhaseScript = `phases:
  - phase: core_facts
    description: Contact details, skeleton timeline and resume sections
    objectives:
      - id: applicant_profile
        label: Applicant profile confirmed
        required: true
      - id: skeleton_timeline
        label: Skeleton timeline validated
        required: true
      - id: timeline_edits_confirmed
        label: User finished editing the timeline
        required: false
      - id: enabled_sections
        label: Resume sections chosen
        required: true
        depends_on: [skeleton_timeline]
    tools:
      - get_user_option
      - get_user_upload
      - get_applicant_profile
      - create_timeline_card
      - update_timeline_card
      - delete_timeline_card
      - configure_enabled_sections
      - set_objective_status
      - list_artifacts
      - next_phase
    unlocks:
      - tool: submit_for_validation
        when_objective: timeline_edits_confirmed

  - phase: deep_dive
    description: Role-by-role interviews that produce knowledge cards
    objectives:
      - id: experience_interviews
        label: Experience interviews held
        required: true
      - id: knowledge_card_plan
        label: Knowledge card plan agreed
        required: true
      - id: knowledge_cards
        label: Knowledge cards drafted and approved
        required: true
        depends_on: [knowledge_card_plan]
    tools:
      - get_user_option
      - get_user_upload
      - display_knowledge_card_plan
      - update_timeline_card
      - set_objective_status
      - list_artifacts
      - next_phase
    unlocks:
      - tool: submit_knowledge_card
        when_objective: knowledge_card_plan

  - phase: evidence_collection
    description: Supporting documents, publications and writing samples
    objectives:
      - id: evidence_documents
        label: Supporting documents collected
        required: true
      - id: writing_samples
        label: Writing samples collected
        required: false
    tools:
      - get_user_option
      - get_user_upload
      - persist_data
      - create_publication_card
      - submit_for_validation
      - set_objective_status
      - list_artifacts
      - next_phase

  - phase: strategic_synthesis
    description: Candidate dossier and positioning summary
    objectives:
      - id: candidate_dossier
        label: Candidate dossier assembled
        required: true
      - id: strategic_summary
        label: Strategic summary validated
        required: true
        depends_on: [candidate_dossier]
    tools:
      - get_user_option
      - persist_data
      - submit_for_validation
      - set_objective_status
      - list_artifacts
      - next_phase

  - phase: complete
    description: Interview finished
    objectives: []
    tools: []
`
