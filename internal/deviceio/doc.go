// Package deviceio implements hal.DeviceIO over the transports Laura-bot
// hardware actually uses.
//
//   - SerialDriver: microcontrollers on a USB serial port (Arduino servo board)
//   - MQTTDriver: networked nodes (ESP32 camera, voice and speaker nodes)
//   - ExecDriver: local helper programs wrapping the system microphone,
//     speakers and camera
//
// Mux routes each call to the driver registered for the candidate's kind.
// Every transport carries the same request/reply exchange: the router
// writes one encoded Command and reads one Reply (see Transact).
package deviceio
