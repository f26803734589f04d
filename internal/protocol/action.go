// Package protocol defines the client-facing vocabulary of the RESIGN
// session protocol: the closed action selector set and the reply shapes
// carried over the framed channel.
package protocol

import "fmt"

// Action identifies one of the seven operations a client can request.
type Action int

const (
	ActionShowUsers Action = iota + 1
	ActionChangeOwnPhone
	ActionChangePhone
	ActionAddUser
	ActionLogin
	ActionLogout
	ActionExit
)

// actionPhrases maps each action to its fixed textual alias. The phrase for
// ActionChangePhone is historical ("Show someone's phone number") and kept
// for wire compatibility with existing clients.
var actionPhrases = map[Action]string{
	ActionShowUsers:      "Show users",
	ActionChangeOwnPhone: "Change my phone number",
	ActionChangePhone:    "Show someone's phone number",
	ActionAddUser:        "Add user",
	ActionLogin:          "Login",
	ActionLogout:         "Logout",
	ActionExit:           "Exit",
}

// actionsByAlias is the reverse lookup covering both the numeric codes
// ("1".."7") and the textual phrases. Built once at init.
var actionsByAlias = func() map[string]Action {
	m := make(map[string]Action, 2*len(actionPhrases))
	for action, phrase := range actionPhrases {
		m[phrase] = action
		m[fmt.Sprintf("%d", int(action))] = action
	}
	return m
}()

// Actions lists all selectors in menu order.
func Actions() []Action {
	return []Action{
		ActionShowUsers,
		ActionChangeOwnPhone,
		ActionChangePhone,
		ActionAddUser,
		ActionLogin,
		ActionLogout,
		ActionExit,
	}
}

// ParseAction resolves a client-supplied selector token. The match is exact
// and case-sensitive: either a numeric code "1".."7" or the fixed phrase.
func ParseAction(selector string) (Action, error) {
	action, ok := actionsByAlias[selector]
	if !ok {
		return 0, fmt.Errorf("unknown action selector %q", selector)
	}
	return action, nil
}

// String returns the action's textual alias.
func (a Action) String() string {
	if phrase, ok := actionPhrases[a]; ok {
		return phrase
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Code returns the action's numeric alias as sent on the wire.
func (a Action) Code() string {
	return fmt.Sprintf("%d", int(a))
}

// Name returns a short identifier for logs and metrics labels.
func (a Action) Name() string {
	switch a {
	case ActionShowUsers:
		return "show_users"
	case ActionChangeOwnPhone:
		return "change_own_phone"
	case ActionChangePhone:
		return "change_phone"
	case ActionAddUser:
		return "add_user"
	case ActionLogin:
		return "login"
	case ActionLogout:
		return "logout"
	case ActionExit:
		return "exit"
	default:
		return "unknown"
	}
}
