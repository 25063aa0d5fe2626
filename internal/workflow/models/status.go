package models

// OrderStatus is a four digit code. The first two digits name the stage
// (11 first pass, 12 second pass, 21 QA) and the last two the state within it.
type OrderStatus string

const (
	StatusFirstUnassigned OrderStatus = "1100"
	StatusFirstPending    OrderStatus = "1101"
	StatusFirstSuccess    OrderStatus = "1102"
	StatusFirstReturned   OrderStatus = "1103"
	StatusFirstFailed     OrderStatus = "1104"
	StatusFirstSuspended  OrderStatus = "1105"

	StatusSecondUnassigned OrderStatus = "1200"
	StatusSecondPending    OrderStatus = "1201"
	StatusSecondSuccess    OrderStatus = "1202"
	StatusSecondReturned   OrderStatus = "1203"
	StatusSecondFailed     OrderStatus = "1204"
	StatusSecondSuspended  OrderStatus = "1205"

	StatusQAUnassigned OrderStatus = "2100"
	StatusQAPending    OrderStatus = "2101"
	StatusQASuccess    OrderStatus = "2102"
	StatusQAReturned   OrderStatus = "2103"
	StatusQAFailed     OrderStatus = "2104"
	StatusQASuspended  OrderStatus = "2105"
)

var statusLabels = map[OrderStatus]string{
	StatusFirstUnassigned:  "first pass unassigned",
	StatusFirstPending:     "first pass pending",
	StatusFirstSuccess:     "first pass done",
	StatusFirstReturned:    "first pass returned",
	StatusFirstFailed:      "first pass failed",
	StatusFirstSuspended:   "first pass suspended",
	StatusSecondUnassigned: "second pass unassigned",
	StatusSecondPending:    "second pass pending",
	StatusSecondSuccess:    "second pass done",
	StatusSecondReturned:   "second pass returned",
	StatusSecondFailed:     "second pass failed",
	StatusSecondSuspended:  "second pass suspended",
	StatusQAUnassigned:     "qa unassigned",
	StatusQAPending:        "qa pending",
	StatusQASuccess:        "qa done",
	StatusQAReturned:       "qa returned",
	StatusQAFailed:         "qa failed",
	StatusQASuspended:      "qa suspended",
}

func (s OrderStatus) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label is the human readable name shown next to the code.
func (s OrderStatus) Label() string {
	return statusLabels[s]
}

func (s OrderStatus) In(set ...OrderStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// Stage names a proofreading or QA pass. The values double as KPI trigger
// steps.
type Stage string

const (
	StageNone   Stage = ""
	StageFirst  Stage = "first_audit"
	StageSecond Stage = "second_audit"
	StageQA     Stage = "qa"
)

var (
	firstReviewStatuses  = []OrderStatus{StatusFirstUnassigned, StatusFirstPending, StatusFirstSuccess, StatusFirstFailed, StatusFirstSuspended, StatusSecondReturned}
	secondReviewStatuses = []OrderStatus{StatusSecondUnassigned, StatusSecondPending, StatusSecondSuccess, StatusSecondFailed, StatusSecondSuspended, StatusQAReturned}

	firstSubmittable  = []OrderStatus{StatusFirstPending, StatusFirstFailed, StatusFirstSuspended, StatusSecondReturned}
	secondSubmittable = []OrderStatus{StatusSecondPending, StatusSecondFailed, StatusSecondSuspended, StatusQAReturned}

	firstSuspendable  = []OrderStatus{StatusFirstPending, StatusFirstSuspended, StatusSecondReturned}
	secondSuspendable = []OrderStatus{StatusSecondPending, StatusSecondSuspended, StatusQAReturned}

	// QAStatuses are the states a book's orders must all be in before QA can
	// take the book.
	QAStatuses = []OrderStatus{StatusQAUnassigned, StatusQAPending}
)

// ReviewStage resolves which proofreading pass owns an order in status s.
// 1203 belongs to the first pass because the first reviewer reworks it; 2103
// belongs to the second pass for the same reason.
func ReviewStage(s OrderStatus) Stage {
	switch {
	case s.In(firstReviewStatuses...):
		return StageFirst
	case s.In(secondReviewStatuses...):
		return StageSecond
	}
	return StageNone
}

type ReviewStatus string

const (
	ReviewUnassign ReviewStatus = "unassign"
	ReviewUnaudit  ReviewStatus = "unaudit"
	ReviewSuccess  ReviewStatus = "success"
	ReviewFail     ReviewStatus = "fail"
	ReviewReturned ReviewStatus = "returned"
	ReviewSuspend  ReviewStatus = "suspend"
)

func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewUnassign, ReviewUnaudit, ReviewSuccess, ReviewFail, ReviewReturned, ReviewSuspend:
		return true
	}
	return false
}

// Assignment is an order status paired with the pass whose assignee must be
// the caller. Apply tiers are expressed as lists of assignments.
type Assignment struct {
	Status OrderStatus
	Stage  Stage
}

// RequestedAssignments maps an explicitly requested review status to the
// caller's own orders it selects. Unknown statuses select nothing.
func RequestedAssignments(s ReviewStatus) []Assignment {
	switch s {
	case ReviewUnaudit:
		return []Assignment{{StatusFirstPending, StageFirst}, {StatusSecondPending, StageSecond}}
	case ReviewSuspend:
		return []Assignment{{StatusFirstSuspended, StageFirst}, {StatusSecondSuspended, StageSecond}}
	case ReviewReturned:
		return []Assignment{{StatusSecondReturned, StageFirst}, {StatusQAReturned, StageSecond}}
	}
	return nil
}

var (
	OwnReturned = []Assignment{{StatusSecondReturned, StageFirst}, {StatusQAReturned, StageSecond}}
	OwnPending  = []Assignment{{StatusFirstPending, StageFirst}, {StatusSecondPending, StageSecond}}
)
