package keybindings

import tea "github.com/charmbracelet/bubbletea"

// Action represents a specific action that can be triggered by a key
type Action string

// Define all possible actions
const (
	// Global actions
	ActionQuit       Action = "quit"
	ActionToggleHelp Action = "toggle_help"
	ActionBack       Action = "back" // General purpose "go back" or "cancel"

	// Navigation actions
	ActionMoveUp     Action = "move_up"
	ActionMoveDown   Action = "move_down"
	ActionPageUp     Action = "page_up"
	ActionPageDown   Action = "page_down"
	ActionMoveTop    Action = "move_top"
	ActionMoveBottom Action = "move_bottom"

	// Console actions
	ActionEnterContent  Action = "enter_content"
	ActionStop          Action = "stop"
	ActionAdShown       Action = "ad_shown"
	ActionAdClosed      Action = "ad_closed"
	ActionSkipAd        Action = "skip_ad"
	ActionPauseAd       Action = "pause_ad"
	ActionAdVolume      Action = "ad_volume"
	ActionVideoClick    Action = "video_click"
	ActionLiveSeekBack  Action = "live_seek_back"
	ActionLiveSeekLive  Action = "live_seek_live"
	ActionEngineVersion Action = "engine_version"
	ActionOpenHistory   Action = "open_history"
	ActionContentID     Action = "content_id"
	ActionReconnect     Action = "reconnect"

	// Content input actions
	ActionSubmitContent Action = "submit_content"
	ActionSubmitSync    Action = "submit_sync"

	// History actions
	ActionSelectHistory Action = "select_history"
)

// ContextName represents a specific UI context in the application that has its own keybinds
type ContextName string

const (
	ContextGlobal       ContextName = "global"
	ContextConsole      ContextName = "console"
	ContextContentInput ContextName = "content_input"
	ContextHistory      ContextName = "history"
	ContextHelp         ContextName = "help"
)

var ContextBindings = map[ContextName][]Binding{
	ContextGlobal:       globalBindings,
	ContextConsole:      consoleBindings,
	ContextContentInput: contentInputBindings,
	ContextHistory:      historyBindings,
	ContextHelp:         helpBindings,
}

// KeyMap stores the mappings from actions to key sequences for each context
type KeyMap struct {
	Primary   string
	Secondary string // Optional alternative key
	Help      string // Description for help screen
}

// Binding maps an action to its keys and help text
type Binding struct {
	Action Action
	KeyMap KeyMap
}

// navigationBindings contains general navigation bindings for consistent navigation across the app
var navigationBindings = []Binding{
	{Action: ActionMoveUp, KeyMap: KeyMap{Primary: "up", Secondary: "k", Help: "Move cursor up"}},
	{Action: ActionMoveDown, KeyMap: KeyMap{Primary: "down", Secondary: "j", Help: "Move cursor down"}},
	{Action: ActionPageUp, KeyMap: KeyMap{Primary: "pgup", Help: "Move up one page"}},
	{Action: ActionPageDown, KeyMap: KeyMap{Primary: "pgdown", Help: "Move down one page"}},
	{Action: ActionMoveTop, KeyMap: KeyMap{Primary: "home", Help: "Move top of view"}},
	{Action: ActionMoveBottom, KeyMap: KeyMap{Primary: "end", Help: "Move bottom of view"}},
}

// globalBindings contains key bindings that work across all views
var globalBindings = []Binding{
	{Action: ActionQuit, KeyMap: KeyMap{Primary: "ctrl+c", Help: "Quit application"}},
	{Action: ActionToggleHelp, KeyMap: KeyMap{Primary: "ctrl+h", Help: "Toggle help screen"}},
	{Action: ActionBack, KeyMap: KeyMap{Primary: "esc", Help: "Go back/cancel current action"}},
}

// helpBindings contains key bindings specific to the help view
var helpBindings = withNavigation([]Binding{})

// consoleBindings contains key bindings for the session console
var consoleBindings = withNavigation([]Binding{
	{Action: ActionEnterContent, KeyMap: KeyMap{Primary: "l", Secondary: "enter", Help: "Enter content to load"}},
	{Action: ActionStop, KeyMap: KeyMap{Primary: "s", Help: "Stop the current load"}},
	{Action: ActionAdShown, KeyMap: KeyMap{Primary: "a", Help: "Report the advertisement as shown"}},
	{Action: ActionAdClosed, KeyMap: KeyMap{Primary: "c", Help: "Report the advertisement as closed"}},
	{Action: ActionSkipAd, KeyMap: KeyMap{Primary: "x", Help: "Skip the advertisement"}},
	{Action: ActionPauseAd, KeyMap: KeyMap{Primary: "p", Help: "Request a pause advertisement"}},
	{Action: ActionAdVolume, KeyMap: KeyMap{Primary: "v", Help: "Query advertisement volume"}},
	{Action: ActionVideoClick, KeyMap: KeyMap{Primary: "o", Help: "Send a video click"}},
	{Action: ActionLiveSeekBack, KeyMap: KeyMap{Primary: "left", Secondary: "h", Help: "Seek live stream back"}},
	{Action: ActionLiveSeekLive, KeyMap: KeyMap{Primary: "right", Secondary: "L", Help: "Seek live stream to the live edge"}},
	{Action: ActionEngineVersion, KeyMap: KeyMap{Primary: "e", Help: "Show engine version"}},
	{Action: ActionOpenHistory, KeyMap: KeyMap{Primary: "/", Secondary: "ctrl+f", Help: "Search recently loaded content"}},
	{Action: ActionContentID, KeyMap: KeyMap{Primary: "i", Help: "Resolve the player content id of the last infohash"}},
	{Action: ActionReconnect, KeyMap: KeyMap{Primary: "r", Help: "Drop the session and reconnect to the engine"}},
})

// contentInputBindings contains key bindings for when the content input is focused
var contentInputBindings = []Binding{
	{Action: ActionBack, KeyMap: KeyMap{Primary: "esc", Help: "Cancel input"}},
	{Action: ActionSubmitContent, KeyMap: KeyMap{Primary: "enter", Help: "Load content asynchronously"}},
	{Action: ActionSubmitSync, KeyMap: KeyMap{Primary: "ctrl+s", Help: "Load content and wait for the engine"}},
}

// historyBindings contains key bindings for the recent content search
var historyBindings = []Binding{
	{Action: ActionBack, KeyMap: KeyMap{Primary: "esc", Secondary: "ctrl+f", Help: "Close search"}},
	{Action: ActionSelectHistory, KeyMap: KeyMap{Primary: "enter", Help: "Load the selected content"}},
	{Action: ActionMoveUp, KeyMap: KeyMap{Primary: "up", Help: "Move cursor up"}},
	{Action: ActionMoveDown, KeyMap: KeyMap{Primary: "down", Help: "Move cursor down"}},
}

// GetActionKey returns the primary key for an action
func GetActionKey(action Action, bindings []Binding) string {
	for _, binding := range bindings {
		if binding.Action == action {
			return binding.KeyMap.Primary
		}
	}
	return ""
}

// GetBindingByKey returns the action and help text for a given key
func GetBindingByKey(key string, bindings []Binding) (Action, string) {
	for _, binding := range bindings {
		if binding.KeyMap.Primary == key || binding.KeyMap.Secondary == key {
			return binding.Action, binding.KeyMap.Help
		}
	}
	return "", ""
}

// GetActionByKey returns just the action for a given key, or an empty Action if not found
func GetActionByKey(keyMsg tea.KeyMsg, name ContextName) Action {
	action, _ := GetBindingByKey(keyMsg.String(), ContextBindings[name])
	return action
}

// FormatKeyHelp formats a key binding for display in help text
func FormatKeyHelp(binding Binding) string {
	if binding.KeyMap.Secondary != "" {
		return binding.KeyMap.Primary + "/" + binding.KeyMap.Secondary + ": " + binding.KeyMap.Help
	}
	return binding.KeyMap.Primary + ": " + binding.KeyMap.Help
}

// withNavigation is a helper function to include navigation bindings in other binding sets
func withNavigation(bindings []Binding) []Binding {
	return append(append([]Binding{}, navigationBindings...), bindings...)
}
