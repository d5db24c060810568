package aqmmodels

// LivenessState is the derived online/offline status of the sensor fleet
type LivenessState string

const (
	LivenessOnline  LivenessState = "online"
	LivenessOffline LivenessState = "offline"
	LivenessUnknown LivenessState = "unknown"
)
