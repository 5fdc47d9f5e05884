// Package wavepool provides a job-dispatch and worker-pool coordination
// engine.
//
// The engine distributes independent jobs across a fixed set of isolated
// execution units using deterministic round-robin order, bounds the number
// of jobs admitted at any time and signals once per wave when every
// outstanding job has completed. Two native unit flavours are supported
// behind one abstraction:
//
//   - channel – dedicated bidirectional channels with listener replacement
//   - port    – single assignable message slots with codec isolation
//
// End-users typically interact with the engine via the Service façade
// exposed by the root package:
//
//	srv, _ := wavepool.New(
//	    wavepool.WithLocation("workers/resize"),
//	    wavepool.WithModules(resizeModule),
//	    wavepool.WithOnResult(consume),
//	)
//	_ = srv.Post(ctx, protocol.NewJob(0, payload))
//	_ = srv.WaitForCompletion(ctx)
//	_ = srv.Close(ctx, true)
//
// For more details see the individual sub-packages.
package wavepool
