package hostplayer

// ParseArgs splits a string of command-line arguments, respecting quotes
func ParseArgs(argsString string) []string {
	var args []string
	var quote rune
	current := []rune{}
	started := false

	for _, r := range argsString {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			started = true
		case quote == 0 && (r == ' ' || r == '\t'):
			if started {
				args = append(args, string(current))
				current = current[:0]
				started = false
			}
		default:
			current = append(current, r)
			started = true
		}
	}

	if started {
		args = append(args, string(current))
	}
	return args
}
