/*
Package mem implements transport.ISocket as an in-process network.

A Network connects any number of sockets by name. Every Send is delivered
synchronously into the inbox of the addressed socket, subject to the
network's impairments: datagrams can be lost, duplicated or inserted at a
random position of the inbox. All randomness comes from one seeded source,
so a test sees the same sequence of impairments on every run.

	network := mem.NewNetwork(mem.WithSeed(1), mem.WithLoss(0.2))
	server, _ := network.Listen("server")
	client, _ := network.Dial("server")
*/
package mem
