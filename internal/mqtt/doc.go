// Package mqtt connects Steward to an MQTT broker. It publishes owner
// notifications (upcoming priority events, the daily summary) as JSON
// messages, tracks availability with a will and birth message, and
// exposes a few diagnostic sensors through Home Assistant MQTT
// discovery.
//
// Connection management uses Eclipse Paho v2's [autopaho] package with
// automatic reconnection. On every (re-)connect the publisher sends
// retained discovery payloads and an "online" birth message; the will
// message flips the availability topic to "offline" on unexpected
// disconnects.
package mqtt
