// Package channel provides the notification transports reminderd can send
// through: Twilio SMS, Telegram, and a simulated channel that only logs.
package channel
