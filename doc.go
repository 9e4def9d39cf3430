// Package blell implements a Bluetooth Low Energy Link Layer core: timer
// multiplexing, a single-packet PHY driver, and the advertising/scanning/
// initiating/connection state machine of Bluetooth Core v4.1 Vol 6 Part B.
// Each concern lives in its own package (addr, pdu, chanmap, radio, timer,
// linklayer, gap); cmd holds example gateways wiring it all together.
package blell
