/*
Package events provides an in-process publish/subscribe broker for
scheduling events.

The scheduler publishes one event per notable step of a cycle (start, plan,
bind, provision, completion) and the pricing catalog publishes refresh
results. Subscribers such as the API event log or tests receive them on a
buffered channel:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.CycleID, ev.Message)
	}

Publishing never blocks a scheduling cycle. A full broker queue drops the
event (see Dropped) and a slow subscriber misses events rather than stalling
the others.
*/
package events
