// Package simulation drives an epidemic run day by day.
//
// A Simulation owns one population, one disease engine, one intervention
// policy and one random generator. Each day it snapshots the states, applies
// the interventions, advances the disease by one step, then records the
// day's counts and the individuals whose state changed. Nothing here touches
// the filesystem; callers persist the returned Result.
//
// Usage:
//
//	sim, err := simulation.New(cfg, simulation.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	result, err := sim.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Summary.FinalState)
package simulation
