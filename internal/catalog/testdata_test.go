package catalog

import (
	"fmt"
	"strings"
)

// fixtureSubsystems are the 34 top-level subsystems of the test catalog.
var fixtureSubsystems = []string{
	"ats-power", "ats-shutter", "ats-spectrograph", "auxtel-mount", "bot-bench",
	"bot-motorplatform", "ccob", "chiller1", "chiller2", "comcam-fp",
	"daq-monitor", "focal-plane", "fp-temp-ctl", "hex1", "hex2",
	"image-handling", "lamp", "mcm", "mpm", "pathfinder",
	"pdu-24vc", "pdu-24vd", "pdu-48v", "quadbox", "rebpower",
	"refrig-cryo1", "refrig-cryo2", "refrig-cold1", "shutter", "thermal",
	"ts7-1", "ts8-bench", "utility", "vacuum",
}

// fixtureRecords returns a synthetic dataserver catalog. Every subsystem
// has a Runtime group with three memory channels; five subsystems carry a
// channel ending in "Temp"; only focal-plane has rafts.
func fixtureRecords() []Record {
	var records []Record
	id := 1000
	add := func(path string) {
		records = append(records, Record{
			ID:   fmt.Sprint(id),
			Path: strings.Split(path, "/"),
		})
		id++
	}

	for _, sub := range fixtureSubsystems {
		add(sub + "/Runtime/FreeMemory")
		add(sub + "/Runtime/TotalMemory")
		add(sub + "/Runtime/MaxMemory")
		add(sub + "/Runtime/ThreadCount")
		add(sub + "/State/Alert/Level")
	}

	for _, raft := range []string{"R22", "R34"} {
		for _, reb := range []string{"Reb0", "Reb1"} {
			base := "focal-plane/" + raft + "/" + reb
			add(base + "/rds/ReadoutDelay")
			add(base + "/rds/ClearDelay")
			add(base + "/Ref/Voltage")
			add(base + "/Ref/Current")
		}
	}

	add("focal-plane/R22/Reb1/CCDTemp")
	add("thermal/Cold1/CryoTemp")
	add("vacuum/Cryo/ColdTemp")
	add("refrig-cryo1/Compressor/DischargeTemp")
	add("quadbox/BFR/BoardTemp")

	return records
}

func fixtureTree() *Tree {
	return Build(fixtureRecords())
}

func childNames(n *Node) []string {
	var names []string
	for _, c := range n.Children() {
		names = append(names, c.Name())
	}
	return names
}

func leafPaths(t *Tree) []string {
	var paths []string
	for _, r := range t.Leaves() {
		paths = append(paths, r.FullPath())
	}
	return paths
}
