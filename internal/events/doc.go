// Package events carries dataset notifications between explorer instances,
// in process or through a RabbitMQ fanout exchange.
package events
