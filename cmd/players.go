package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/normalize"
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Manage the canonical roster used for player matching",
}

var playersImportCmd = &cobra.Command{
	Use:   "import <roster.json>",
	Short: "Upsert players from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		players, err := readRoster(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertPlayers(ctx, players)
		if err != nil {
			return eris.Wrap(err, "players import")
		}
		fmt.Printf("Imported %d players.\n", n)
		return nil
	},
}

func init() {
	playersCmd.AddCommand(playersImportCmd)
	rootCmd.AddCommand(playersCmd)
}

// readRoster loads players and canonicalizes their team and position.
func readRoster(path string) ([]model.Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "players: read %s", path)
	}
	var players []model.Player
	if err := json.Unmarshal(data, &players); err != nil {
		return nil, eris.Wrapf(err, "players: parse %s", path)
	}
	for i := range players {
		p := &players[i]
		if p.ID == "" || p.Name == "" {
			return nil, eris.Errorf("players: entry %d needs id and name", i)
		}
		p.TeamID = normalize.NormalizeTeam(p.TeamID)
		p.Position = normalize.NormalizePosition(p.Position)
	}
	return players, nil
}
