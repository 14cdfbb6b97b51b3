package engine

// Scripts run by ArcPyEngine. They read their inputs from sys.argv so paths never need quoting,
// and target the Python 2.7 interpreter bundled with ArcGIS Desktop.

const normalize_script = `
import sys
import arcpy

arcpy.env.overwriteOutput = True

path = sys.argv[1]
code = int(sys.argv[2])

arcpy.DefineProjection_management(path, arcpy.SpatialReference(code))
arcpy.RepairGeometry_management(path)
`

const clip_script = `
import sys
import arcpy

arcpy.env.overwriteOutput = True

path, reference, scratch, area_field, dbh_field, threshold = sys.argv[1:7]

arcpy.Clip_analysis(path, reference, scratch)
arcpy.AddField_management(scratch, area_field, "DOUBLE")
arcpy.CalculateField_management(scratch, area_field, "!SHAPE.area@SQUAREKILOMETERS!", "PYTHON_9.3")

where = '"%s" < %s' % (dbh_field, threshold)
total = 0.0

with arcpy.da.SearchCursor(scratch, [area_field], where) as cursor:
    for row in cursor:
        if row[0] is not None:
            total += row[0]

arcpy.Delete_management(scratch)

print(repr(total))
`

const autocorrelation_script = `
import sys
import arcpy

arcpy.env.overwriteOutput = True

path, dbh_field, indicator, threshold, standardization, band = sys.argv[1:7]

if indicator not in [f.name for f in arcpy.ListFields(path)]:
    arcpy.AddField_management(path, indicator, "SHORT")

expr = "1 if !%s! is not None and !%s! < %s else 0" % (dbh_field, dbh_field, threshold)
arcpy.CalculateField_management(path, indicator, expr, "PYTHON_9.3")

args = [path, indicator, "false", "INVERSE_DISTANCE", "EUCLIDEAN_DISTANCE", standardization]

if float(band) > 0:
    args.append(band)

result = arcpy.SpatialAutocorrelation_stats(*args)
count = int(arcpy.GetCount_management(path).getOutput(0))

print("%r %r %r %d" % (float(result.getOutput(0)), float(result.getOutput(1)), float(result.getOutput(2)), count))
`

const clear_map_script = `
import sys
import arcpy

mxd = arcpy.mapping.MapDocument(sys.argv[1])

for df in arcpy.mapping.ListDataFrames(mxd):
    for lyr in arcpy.mapping.ListLayers(mxd, "", df):
        arcpy.mapping.RemoveLayer(df, lyr)

mxd.save()
del mxd
`
