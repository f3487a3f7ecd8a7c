package bus

import "fmt"

// Pub/Sub channel name helpers
//
// All channels are namespaced by instance name so multiple Warren instances
// can safely share a Redis server.
//
// Channel pattern: warren:{instance_name}:...

// EventsChannel returns the well-known coordination channel carrying all
// generic agent traffic for an instance.
// Pattern: warren:{instance_name}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("warren:%s:events", instanceName)
}

// AgentChannel returns the role-specific channel for one agent.
// Pattern: warren:{instance_name}:agent:{agent_name}:events
func AgentChannel(instanceName, agentName string) string {
	return fmt.Sprintf("warren:%s:agent:%s:events", instanceName, agentName)
}
