package form

import (
	"errors"
	"fmt"
	"strings"

	"orgsync/pkg/manifest"
)

// TeamsCommand is the first line that marks a team membership request.
const TeamsCommand = "/teams"

// ErrNotTeamCommand is returned for bodies that do not start with /teams.
var ErrNotTeamCommand = errors.New("issue body is not a /teams command")

// Operation is a membership operation.
type Operation string

const (
	OperationAdd    Operation = "add"
	OperationRemove Operation = "remove"
	OperationSync   Operation = "sync"
)

// TeamCommand is a parsed /teams request.
type TeamCommand struct {
	Team      string
	Operation Operation
	Members   []string
}

// IsTeamCommand reports whether the first line of body is /teams.
func IsTeamCommand(body string) bool {
	first, _, _ := strings.Cut(strings.TrimLeft(strings.ReplaceAll(body, "\r\n", "\n"), "\n"), "\n")
	return strings.TrimSpace(first) == TeamsCommand
}

// ParseTeamCommand parses:
//
//	/teams
//	team: platform
//	operation: add|remove|sync
//	members:
//	- alice
//	- @bob
//
// Members may also be given inline as "members: alice, bob".
func ParseTeamCommand(body string) (*TeamCommand, error) {
	if !IsTeamCommand(body) {
		return nil, ErrNotTeamCommand
	}

	lines := strings.Split(strings.ReplaceAll(strings.TrimLeft(body, "\r\n"), "\r\n", "\n"), "\n")
	cmd := &TeamCommand{}
	inMembers := false

	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "-") && inMembers {
			if login := manifest.NormalizeLogin(strings.TrimPrefix(trimmed, "-")); login != "" {
				cmd.Members = append(cmd.Members, login)
			}
			continue
		}

		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			inMembers = false
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "team":
			cmd.Team = strings.Trim(value, `"'`)
			inMembers = false
		case "operation":
			cmd.Operation = Operation(strings.ToLower(value))
			inMembers = false
		case "members":
			inMembers = true
			for _, m := range strings.Split(value, ",") {
				if login := manifest.NormalizeLogin(m); login != "" {
					cmd.Members = append(cmd.Members, login)
				}
			}
		default:
			inMembers = false
		}
	}

	if cmd.Team == "" {
		return nil, fmt.Errorf("/teams command is missing 'team:'")
	}
	switch cmd.Operation {
	case OperationAdd, OperationRemove, OperationSync:
	case "":
		return nil, fmt.Errorf("/teams command is missing 'operation:'")
	default:
		return nil, fmt.Errorf("invalid operation %q: must be add, remove or sync", cmd.Operation)
	}
	if len(cmd.Members) == 0 && cmd.Operation != OperationSync {
		return nil, fmt.Errorf("/teams %s requires at least one member", cmd.Operation)
	}

	return cmd, nil
}
