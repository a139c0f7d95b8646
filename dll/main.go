//go:build windows && cgo

// Command dll builds mfilemon.dll, the print monitor the Windows spooler
// loads:
//
//	go build -buildmode=c-shared -o mfilemon.dll ./dll
//
// The spooler calls InitializePrintMonitor2 and then the MONITOR2 entry
// points, which forward to a monitor.Monitor.
package main

func main() {}
