// Package geoprocess derives landscape metrics from the vector datasets written by ForestSim simulation
// experiments. Common operations include: gathering datasets, cloning them to a scratch location,
// normalizing and measuring them with a GIS engine and removing scratch output. The geoprocess command
// in cmd/geoprocess ties these together.
package geoprocess
