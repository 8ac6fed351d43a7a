package flow

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     Screen
		to       Screen
		expected bool
	}{
		{name: "welcome to choose chain", from: ScreenWelcome, to: ScreenChooseChain, expected: true},
		{name: "choose chain to connect", from: ScreenChooseChain, to: ScreenConnect, expected: true},
		{name: "connect to review", from: ScreenConnect, to: ScreenReview, expected: true},
		{name: "review to paying", from: ScreenReview, to: ScreenPaying, expected: true},
		{name: "review back to connect", from: ScreenReview, to: ScreenConnect, expected: true},
		{name: "paying to receipt", from: ScreenPaying, to: ScreenReceipt, expected: true},
		{name: "paying back to review", from: ScreenPaying, to: ScreenReview, expected: true},
		{name: "receipt to welcome", from: ScreenReceipt, to: ScreenWelcome, expected: true},
		{name: "any screen to welcome reset", from: Screen("whatever"), to: ScreenWelcome, expected: true},
		{name: "welcome to paying invalid", from: ScreenWelcome, to: ScreenPaying, expected: false},
		{name: "connect to paying invalid", from: ScreenConnect, to: ScreenPaying, expected: false},
		{name: "receipt to review invalid", from: ScreenReceipt, to: ScreenReview, expected: false},
		{name: "choose chain to choose chain invalid", from: ScreenChooseChain, to: ScreenChooseChain, expected: false},
		{name: "unknown screen to connect invalid", from: Screen("unknown"), to: ScreenConnect, expected: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}

func TestFlowStateValidate(t *testing.T) {
	cfg := testConfig()

	testCases := []struct {
		name    string
		state   FlowState
		wantErr bool
	}{
		{name: "initial state", state: Initial(cfg)},
		{name: "receipt with hash", state: FlowState{Screen: ScreenReceipt, SelectedChainID: 8453, TransactionHash: "0xabc"}},
		{name: "welcome with hash", state: FlowState{Screen: ScreenWelcome, TransactionHash: "0xabc"}, wantErr: true},
		{name: "welcome with prompt", state: FlowState{Screen: ScreenWelcome, CancelPromptVisible: true}, wantErr: true},
		{name: "review with hash", state: FlowState{Screen: ScreenReview, SelectedChainID: 8453, TransactionHash: "0xabc"}, wantErr: true},
		{name: "connect on unsupported chain", state: FlowState{Screen: ScreenConnect, SelectedChainID: 1}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Validate(cfg)
			if tc.wantErr && err == nil {
				t.Errorf("expected invariant violation for %+v", tc.state)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error %v for %+v", err, tc.state)
			}
		})
	}
}
