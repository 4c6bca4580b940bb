// Package common provides the data structures shared by every layer of dNet.
//
// The package focuses on:
//   - The packet model that travels over the socket
//   - The event model that travels up to the application
//   - Configuration structures for the protocol, the server and the client
//   - The custom logger integrated with dragonboat's logger package
//
// Key Components:
//
//   - Packet: tagged union of Hello, HelloResponse, the data variants
//     (reliable, unreliable, fragment initial, fragment segment), DataAck and
//     the connection control packets Ping, Pong and Disconnect. Every
//     connection-class packet carries {ConnectionID, Channel, Sequence}.
//
//   - Message: {ID, Type, Payload}, carried in ordered lists inside data packets.
//
//   - Event / EventKind: one notification type for arrival, delivery, drops,
//     protocol errors, fragment progress and connection lifecycle. Components
//     push events into an EventSink, owners buffer them in an EventQueue and
//     expose them as an iterator.
//
//   - Config: tick-counted protocol parameters with Validate(). ServerConfig and
//     ClientConfig add endpoint, credentials and logging settings.
//
//   - Logger: formatting and level control for all package loggers, with an
//     optional rotating log file.
package common
