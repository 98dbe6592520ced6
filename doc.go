// Package movegate coordinates movement approval in a shared session.
//
// One participant, the arbiter, approves or denies movement requests sent by
// requesters. Pending requests are held in a registry owned by the arbiter and
// mirrored on every other client through broadcast deltas. The root package
// wires the pieces into a Client:
//
//	b := memory.New()
//	gm, _ := movegate.New(ctx, model.Participant{ID: "gm", Role: model.RoleArbiter}, movegate.WithBus(b))
//	p1, _ := movegate.New(ctx, model.Participant{ID: "p1", Role: model.RoleRequester}, movegate.WithBus(b))
//	_ = gm.Start(ctx)
//	_ = p1.Start(ctx)
//	_ = p1.Coordinator().RequestMovement(ctx, &model.MovementRequest{EntityID: "T1", Destination: model.Point{X: 5, Y: 5}})
//
// Sub-packages hold the registry, the approval state machine, the bus
// transports (in-process and websocket), settings stores and the
// coordination service.
package movegate
