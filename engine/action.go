package engine

type (
	// Action describes a user command that can be performed on the engine,
	// initiated by calling the Do() method; usually a button or a key press
	// in the presentation layer. Action advertises whether it is enabled, so
	// a UI can gray out buttons when the underlying command is not allowed.
	// The underlying Doer can optionally implement the Enabler interface to
	// decide if the action is enabled or not; if it does not implement the
	// Enabler interface, the action is always allowed.
	Action struct {
		doer Doer
	}

	// Doer is an interface that defines a single Do() method, which is called
	// when an action is performed.
	Doer interface {
		Do()
	}

	// Enabler is an interface that defines a single Enabled() method.
	Enabler interface {
		Enabled() bool
	}
)

func MakeAction(doer Doer) Action {
	return Action{doer: doer}
}

func (a Action) Do() {
	e, ok := a.doer.(Enabler)
	if ok && !e.Enabled() {
		return
	}
	if a.doer != nil {
		a.doer.Do()
	}
}

func (a Action) Enabled() bool {
	if a.doer == nil {
		return false // no doer, not allowed
	}
	e, ok := a.doer.(Enabler)
	if !ok {
		return true // not enabler, always allowed
	}
	return e.Enabled()
}

// Transport actions

type (
	playToggle Engine
	stopAction Engine
	undoAction Engine
	redoAction Engine
)

// PlayToggle returns an Action that starts playback from the current
// position, or pauses it if already playing.
func (e *Engine) PlayToggle() Action { return MakeAction((*playToggle)(e)) }
func (e *playToggle) Do() {
	m := (*Engine)(e)
	if m.Transport().Running() {
		m.Pause()
	} else {
		m.Play()
	}
}

// StopAction returns an Action that stops playback and rewinds to zero.
func (e *Engine) StopAction() Action { return MakeAction((*stopAction)(e)) }
func (e *stopAction) Do()            { (*Engine)(e).Stop() }

// UndoAction returns an Action to undo the last change.
func (e *Engine) UndoAction() Action { return MakeAction((*undoAction)(e)) }
func (e *undoAction) Enabled() bool  { return (*Engine)(e).CanUndo() }
func (e *undoAction) Do()            { (*Engine)(e).Undo() }

// RedoAction returns an Action to redo the last undone change.
func (e *Engine) RedoAction() Action { return MakeAction((*redoAction)(e)) }
func (e *redoAction) Enabled() bool  { return (*Engine)(e).CanRedo() }
func (e *redoAction) Do()            { (*Engine)(e).Redo() }
