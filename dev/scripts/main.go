package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type script struct {
	description string
	run         func(args []string) error
}

var scripts = map[string]script{
	"dev:apply_db_schema": {
		description: "apply services/assignments/db/schema.sql to dev/.state/kadai.db",
		run: func([]string) error {
			return run(
				"atlas", "schema", "apply",
				"-u", "sqlite://dev/.state/kadai.db",
				"--to", "file://services/assignments/db/schema.sql",
				"--dev-url", "sqlite://dev?mode=memory",
			)
		},
	},
	"dev:sqlc": {
		description: "regenerate the assignment queries",
		run: func([]string) error {
			return run("sqlc", "generate", "-f", "services/assignments/db/sqlc.yaml")
		},
	},
	"test:live": {
		description: "run the portal tests against the accounts in dev/.state",
		run: func(args []string) error {
			return run("go", append([]string{"test", "-run", "Live", "-v", "./lib/scrapers/..."}, args...)...)
		},
	},
}

func printScripts() {
	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("Scripts:")
	for _, name := range names {
		fmt.Printf("\t%-22s%s\n", name, scripts[name].description)
	}
}

func run(name string, args ...string) error {
	fmt.Printf("$ %s %s\n", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func main() {
	flag.Parse()

	s, ok := scripts[flag.Arg(0)]
	if !ok {
		fmt.Printf("'%s' is not a script.\n", flag.Arg(0))
		printScripts()
		os.Exit(1)
	}
	err := s.run(flag.Args()[1:])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
