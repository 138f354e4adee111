package interview

// PlanItemStatus tracks progress through the knowledge-card plan.
type PlanItemStatus string

const (
	PlanItemPending    PlanItemStatus = "pending"
	PlanItemInProgress PlanItemStatus = "in_progress"
	PlanItemCompleted  PlanItemStatus = "completed"
	PlanItemSkipped    PlanItemStatus = "skipped"
)

// PlanItem is one knowledge card the model intends to draft.
type PlanItem struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Status PlanItemStatus `json:"status"`
}
