package flow

// validTransitions contains the permitted screen changes. Resetting to welcome is always allowed.
var validTransitions = map[Screen][]Screen{
	ScreenWelcome: {
		ScreenChooseChain,
	},
	ScreenChooseChain: {
		ScreenConnect,
	},
	ScreenConnect: {
		ScreenReview,
	},
	ScreenReview: {
		ScreenPaying,
		ScreenConnect,
	},
	ScreenPaying: {
		ScreenReceipt,
		ScreenReview,
	},
}

// IsTransitionAllowed reports whether moving from one screen to another is valid.
func IsTransitionAllowed(from, to Screen) bool {
	if to == ScreenWelcome {
		return true
	}

	for _, screen := range validTransitions[from] {
		if screen == to {
			return true
		}
	}

	return false
}

var (
	transitionRecorder = func(from, to string) {}
	paymentRecorder    = func(outcome string) {}
)

// RegisterTransitionRecorder allows external packages to observe screen transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// RegisterPaymentRecorder allows external packages to observe payment outcomes.
func RegisterPaymentRecorder(recorder func(outcome string)) {
	if recorder == nil {
		paymentRecorder = func(string) {}
		return
	}

	paymentRecorder = recorder
}

// Payment outcomes reported to the payment recorder.
const (
	OutcomeSucceeded      = "succeeded"
	OutcomeInvalidAmount  = "invalid_amount"
	OutcomeApproveFailed  = "approve_failed"
	OutcomeTransferFailed = "transfer_failed"
	OutcomeNotConfirmed   = "not_confirmed"
	OutcomeAbandoned      = "abandoned"
)
