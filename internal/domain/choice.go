package domain

// Choice identifies a dispatcher action.
type Choice string

const (
	ChoiceHandle       Choice = "handle"
	ChoiceDistributor  Choice = "distributor"
	ChoiceLeader       Choice = "leader"
	ChoiceDealNegative Choice = "deal_negative"
)

// Choices lists the actions offered to the player, in button order.
var Choices = []Choice{ChoiceHandle, ChoiceDistributor, ChoiceLeader, ChoiceDealNegative}

var choiceLabels = map[Choice]string{
	ChoiceHandle:       "🔧 Handling the request (Tech support/Finance)",
	ChoiceDistributor:  "➡️ Redirecting (Distributor)",
	ChoiceLeader:       "⬆️ Escalating to the team leader",
	ChoiceDealNegative: "⚠️ Passing to the Deals department (Negative/Risk)",
}

// Label returns the support-side message echoed when the choice is made.
func (c Choice) Label() string {
	if l, ok := choiceLabels[c]; ok {
		return l
	}
	return "Action selected..."
}

// Known reports whether c is one of the offered choices.
func (c Choice) Known() bool {
	_, ok := choiceLabels[c]
	return ok
}
