package api

import (
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/internal/i18n"
)

// View is the localized copy for the current screen.
type View struct {
	Lang     string      `json:"lang"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
	Action   string      `json:"action,omitempty"`
	Notice   string      `json:"notice,omitempty"`
	Cancel   *CancelView `json:"cancel,omitempty"`
}

// CancelView is the copy of the cancel confirmation.
type CancelView struct {
	Title   string `json:"title"`
	Confirm string `json:"confirm"`
	Dismiss string `json:"dismiss"`
}

// StateResponse is returned by every kiosk route.
type StateResponse struct {
	State flow.FlowState `json:"state"`
	View  View           `json:"view"`
}

func buildView(tr i18n.Translator, st flow.FlowState) View {
	vars := map[string]string{
		"amount": st.Amount,
		"token":  st.TokenSymbol,
		"chain":  st.ChainName,
	}

	prefix := "screen." + string(st.Screen) + "."
	view := View{
		Lang:     tr.Lang(),
		Title:    tr.Format(prefix+"title", vars),
		Subtitle: tr.Format(prefix+"subtitle", vars),
	}

	if action := prefix + "action"; tr.T(action) != action {
		view.Action = tr.T(action)
	}

	if st.Notice != "" {
		view.Notice = tr.Format("notice."+st.Notice, vars)
	}

	if st.CancelPromptVisible {
		view.Cancel = &CancelView{
			Title:   tr.T("cancel.title"),
			Confirm: tr.T("cancel.confirm"),
			Dismiss: tr.T("cancel.dismiss"),
		}
	}

	return view
}
