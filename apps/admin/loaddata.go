package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/nazorat/storage/fixtures"
)

func (cli *commandLine) loadData(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := fixtures.Parse(file)
	if err != nil {
		return err
	}
	sum, err := fixtures.Load(context.Background(), data, cli.usrRepo, cli.seeder)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "loaded %s\n", sum)
	return nil
}
