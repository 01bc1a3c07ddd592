package shell

import "io"

func usage(w io.Writer) {
	io.WriteString(w, "commands:\n")
	io.WriteString(w, "load <path> - load a game file (YAML)\n")
	io.WriteString(w, "save <path> - save the current game to a file (and the game store)\n")
	io.WriteString(w, "open <game-id> - open a game from the game store\n")
	io.WriteString(w, "games - list stored games\n")
	io.WriteString(w, "delete <game-id> - delete a stored game\n")
	io.WriteString(w, "roster - show the current roster\n")
	io.WriteString(w, "solve - solve the current game in the background\n")
	io.WriteString(w, "solve stop - cancel a running solve\n")
	io.WriteString(w, "show - show the current schedule\n")
	io.WriteString(w, "stats - show per-player playing time\n")
	io.WriteString(w, "diff <n> - show substitutions entering rotation n\n")
	io.WriteString(w, "outliers - flag players with notably more playing time\n")
	io.WriteString(w, "suggest - propose fairer per-period rotation counts\n")
	io.WriteString(w, "division <period> <count> - set a period's rotation count\n")
	io.WriteString(w, "smoke [n] [seed] - solve and verify n random games\n")
	io.WriteString(w, "bye or exit - exit the shell\n")
}
