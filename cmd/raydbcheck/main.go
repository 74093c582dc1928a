// Command raydbcheck is a small maintenance CLI over a raydb file: open it
// read-only, print diagnostics, run the structural verifier, or force a
// checkpoint.
//
// Usage:
//
//	raydbcheck stats  <file.raydb>
//	raydbcheck check  <file.raydb>
//	raydbcheck vacuum <file.raydb>
package main

import (
	"fmt"
	"os"

	"github.com/raydb/raydb"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: raydbcheck <stats|check|vacuum> <file.raydb>")
		os.Exit(2)
	}

	cmd, path := os.Args[1], os.Args[2]

	readOnly := cmd != "vacuum"
	db, err := raydb.Open(path, raydb.Options{ReadOnly: readOnly})
	if err != nil {
		fmt.Fprintf(os.Stderr, "raydbcheck: open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer db.Close()

	switch cmd {
	case "stats":
		err = runStats(db)
	case "check":
		err = runCheck(db)
	case "vacuum":
		err = runVacuum(db)
	default:
		fmt.Fprintf(os.Stderr, "raydbcheck: unknown command %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "raydbcheck: %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runStats(db *raydb.DB) error {
	s, err := db.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("snapshot generation : %d\n", s.SnapshotGen)
	fmt.Printf("snapshot nodes      : %d\n", s.SnapshotNodes)
	fmt.Printf("snapshot edges      : %d\n", s.SnapshotEdges)
	fmt.Printf("delta nodes created : %d\n", s.DeltaNodesCreated)
	fmt.Printf("delta nodes deleted : %d\n", s.DeltaNodesDeleted)
	fmt.Printf("delta edges added   : %d\n", s.DeltaEdgesAdded)
	fmt.Printf("delta edges deleted : %d\n", s.DeltaEdgesDeleted)
	fmt.Printf("wal primary usage   : %.1f%%\n", s.WalPrimaryUsage*100)
	fmt.Printf("wal secondary usage : %.1f%%\n", s.WalSecondaryUsage*100)
	fmt.Printf("checkpoint running  : %v\n", s.CheckpointInProgress)
	return nil
}

func runCheck(db *raydb.DB) error {
	report, err := db.Check()
	if err != nil && report == nil {
		return err
	}
	fmt.Printf("nodes checked: %d, edges checked: %d\n", report.NodesChecked, report.EdgesChecked)
	for _, f := range report.Failures {
		fmt.Println("FAIL:", f)
	}
	if !report.OK() {
		os.Exit(1)
	}
	fmt.Println("OK")
	return nil
}

func runVacuum(db *raydb.DB) error {
	if err := db.Vacuum(raydb.VacuumOptions{}); err != nil {
		return err
	}
	fmt.Println("vacuum complete")
	return nil
}
