// Package auditsink ships goSession audit events to external systems.
//
// [AMQPSink] publishes to RabbitMQ, [KafkaSink] writes to a Kafka topic and
// [SlogSink] logs through log/slog. All of them encode events as JSON and
// run on the engine's audit dispatcher goroutine, so a slow broker delays
// only audit delivery. Delivery errors are logged and dropped.
package auditsink
