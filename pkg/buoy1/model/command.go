package model

// CommandKind identifies a server directive.
type CommandKind string

const (
	// CommandNormal means normal operation: nothing to do.
	CommandNormal = CommandKind("normal")
)

// Command is a directive sent by the server in response to an upload. New
// kinds are added as new CommandKind values, optionally carrying Args.
type Command struct {
	Kind CommandKind
	Args map[string]string
}

// Normal returns the no-op command.
func Normal() Command {
	return Command{Kind: CommandNormal}
}

// ActionKind is the discriminator of Action.
type ActionKind int

const (
	// ActionDataReady carries a BuoyData ready for transmission.
	ActionDataReady ActionKind = iota
	// ActionServerCommand carries a Command received from the server.
	ActionServerCommand
)

func (k ActionKind) String() string {
	switch k {
	case ActionDataReady:
		return "data-ready"
	case ActionServerCommand:
		return "server-command"
	}
	return "unknown"
}

// Action is a message for the controller. Exactly one of Data or Command is
// meaningful, depending on Kind.
type Action struct {
	Kind    ActionKind
	Data    BuoyData
	Command Command
}

// DataReady wraps data in an Action.
func DataReady(data BuoyData) Action {
	return Action{Kind: ActionDataReady, Data: data}
}

// ServerCommand wraps cmd in an Action.
func ServerCommand(cmd Command) Action {
	return Action{Kind: ActionServerCommand, Command: cmd}
}
